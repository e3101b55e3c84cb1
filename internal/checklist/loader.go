package checklist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a checklist document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// extensions lists the file extensions searched by Find, in lookup order.
var extensions = []struct {
	ext    string
	format Format
}{
	{".json", FormatJSON},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{".toml", FormatTOML},
}

// ErrNotFound is returned when no checklist file matches a name.
var ErrNotFound = errors.New("checklist not found")

// FormatError reports a malformed checklist document.
type FormatError struct {
	Source string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("invalid checklist format in %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("invalid checklist format: %s", e.Reason)
}

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format, nil
		}
	}
	return "", fmt.Errorf("unsupported checklist extension %q", ext)
}

// Find returns the path of the checklist called name inside dir.
func Find(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("checklist name is required")
	}

	for _, e := range extensions {
		path := filepath.Join(dir, name+e.ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("%w: %s (looked in %s)", ErrNotFound, name, dir)
}

// Load finds, reads and parses the checklist called name inside dir.
// The returned checklist's ID is name.
func Load(dir, name string) (*Checklist, error) {
	path, err := Find(dir, name)
	if err != nil {
		return nil, err
	}

	cl, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cl.ID = name
	return cl, nil
}

// LoadFile reads and parses a checklist file. The ID defaults to the file stem.
func LoadFile(path string) (*Checklist, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist: %w", err)
	}

	cl, err := Parse(data, format)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Source == "" {
			fe.Source = path
		}
		return nil, err
	}

	cl.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return cl, nil
}

// Parse decodes a checklist document. Documents may either wrap the checklist
// in a top-level "checklist" key or hold its fields directly.
func Parse(data []byte, format Format) (*Checklist, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}
	if raw == nil {
		return nil, &FormatError{Reason: "document is empty"}
	}

	if wrapped, ok := raw["checklist"]; ok {
		inner, ok := wrapped.(map[string]any)
		if !ok {
			return nil, &FormatError{Reason: "'checklist' must be an object"}
		}
		raw = inner
	}

	// Round-trip through JSON so every format shares one set of struct tags.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}

	var cl Checklist
	dec := json.NewDecoder(bytes.NewReader(normalized))
	if err := dec.Decode(&cl); err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}

	if err := cl.Validate(); err != nil {
		return nil, err
	}
	return &cl, nil
}

func decodeRaw(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return raw, nil
}
