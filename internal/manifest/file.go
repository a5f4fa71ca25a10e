package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var _ Source = FileSource{}

// FileSource reads a manifest document from a local .json, .yaml or .yml file.
// The document has the same shape the service returns.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) FileSource {
	return FileSource{Path: strings.TrimSpace(path)}
}

// Load implements Source. The file is read on every call.
func (s FileSource) Load(ctx context.Context) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".json":
		return Decode(bytes.NewReader(data))
	case ".yaml", ".yml":
		return decodeYAML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.Path)
	}
}

// decodeYAML converts the YAML tree to JSON so both formats share one decoder,
// which keeps schema blocks as raw JSON.
func decodeYAML(data []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if doc == nil {
		return Decode(strings.NewReader("{}"))
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return Decode(bytes.NewReader(raw))
}
