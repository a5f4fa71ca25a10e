package content

import "embed"

// Pages holds the markdown bodies of the demo site.
//
//go:embed *.md
var Pages embed.FS
