package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/MoAbeds/agent-testx/internal/config"
	"github.com/MoAbeds/agent-testx/internal/manifest"
)

var errNoManifestSource = errors.New("no manifest source: set MOJO_API_KEY or MOJO_RULES_FILE")

func manifestAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	if src == nil {
		return errNoManifestSource
	}
	m, err := src.Load(c.Context)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	var v any = m
	if c.IsSet("path") {
		p := c.String("path")
		rule, ok := m.Rules.Lookup(p)
		if !ok {
			return fmt.Errorf("no rule for %s", manifest.Normalize(p))
		}
		v = rule
	}
	return writeManifest(c.App.Writer, v, c.String("format"))
}

// writeManifest prints v as indented JSON or YAML. YAML goes through the JSON
// encoding so field names match the wire format.
func writeManifest(w io.Writer, v any, format string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	case "yaml", "yml", "":
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", manifest.ErrUnsupportedFormat, format)
	}
}
