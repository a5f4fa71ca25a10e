package templates

import (
	"embed"
	"io/fs"
)

//go:embed *.tmpl
var files embed.FS

// FS returns the page templates bundled into the binary.
func FS() fs.FS {
	return files
}
