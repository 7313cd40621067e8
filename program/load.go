package program

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/typegraph"
)

// Format selects the program description syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unsupported program file %q", path))
}

// LoadFile reads and builds a program description.
func LoadFile(path string) (*typegraph.Program, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	return Load(data, format)
}

// Load decodes a description in the given format and builds the program.
func Load(data []byte, format Format) (*typegraph.Program, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Decode parses a description without building it. Unknown keys are
// rejected in both formats.
func Decode(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.UnmarshalWithOptions(data, &doc, yaml.Strict()); err != nil {
			return nil, errors.ParseFailed("yaml program", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, errors.ParseFailed("toml program", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("unknown keys: %v", undecoded).
				Build()
		}
	default:
		return nil, errors.Unsupported(errors.PhaseConfig, "program format "+string(format))
	}
	return &doc, nil
}

// Encode writes a document back out, used by tooling that rewrites
// descriptions.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(doc); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	return nil, errors.Unsupported(errors.PhaseConfig, "program format "+string(format))
}
