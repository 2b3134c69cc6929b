package capture

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Translator translates one OCR line.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Dictionary translates by exact, case-insensitive lookup. Unknown lines are
// returned unchanged.
type Dictionary struct {
	entries map[string]string
}

var defaultEntries = map[string]string{
	"hello":  "hola",
	"zombie": "zombi",
}

// NewDictionary creates a dictionary with the built-in entries plus extra.
func NewDictionary(extra map[string]string) *Dictionary {
	d := &Dictionary{entries: make(map[string]string, len(defaultEntries)+len(extra))}
	maps.Copy(d.entries, defaultEntries)
	for k, v := range extra {
		d.entries[normalize(k)] = v
	}
	return d
}

// LoadDictionary reads a YAML mapping of source text to translation. An empty
// path yields the built-in entries only.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return NewDictionary(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	var extra map[string]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	return NewDictionary(extra), nil
}

// Lookup returns the translation of text, if known.
func (d *Dictionary) Lookup(text string) (string, bool) {
	v, ok := d.entries[normalize(text)]
	return v, ok
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Translate implements Translator.
func (d *Dictionary) Translate(_ context.Context, text string) (string, error) {
	if v, ok := d.Lookup(text); ok {
		return v, nil
	}
	return text, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
