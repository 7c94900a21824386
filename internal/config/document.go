package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"alchemux/internal/configerr"
	"alchemux/internal/fileutil"
)

//go:embed config.example.toml
var template []byte

// Template returns the commented example document written on first run.
func Template() []byte {
	return append([]byte(nil), template...)
}

// Document is a parsed preference file. Config holds the typed values with
// defaults filled in for absent keys; keys outside the schema are kept
// verbatim and written back on Save.
type Document struct {
	Config Config

	defined map[string]struct{}
	unknown [][]string
	raw     map[string]any
}

// NewDocument wraps cfg in a document with no file backing.
func NewDocument(cfg Config) *Document {
	return &Document{Config: cfg.Clone(), defined: map[string]struct{}{}}
}

// Defined reports whether key was present in the parsed file.
func (d *Document) Defined(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.defined[key]
	return ok
}

// Unknown returns the dotted keys that are not part of the schema.
func (d *Document) Unknown() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.unknown))
	for i, path := range d.unknown {
		out[i] = strings.Join(path, ".")
	}
	return out
}

// Status describes how a Load went.
type Status struct {
	Path   string
	Exists bool
	Notes  []string
	// Err is set when the file exists but could not be used. It wraps
	// configerr.ErrCorruptDocument for parse failures.
	Err error
}

// Corrupt reports whether the file exists but failed to parse.
func (s Status) Corrupt() bool {
	return errors.Is(s.Err, configerr.ErrCorruptDocument)
}

// Load reads the preference document at path. It never returns a nil
// document: a missing, unreadable, or corrupt file yields defaults and the
// reason is recorded in the Status.
func Load(path string) (*Document, Status) {
	status := Status{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			status.Notes = append(status.Notes, fmt.Sprintf("%s not found; using defaults", path))
		} else {
			status.Exists = true
			status.Err = fmt.Errorf("read preferences: %w", err)
		}
		return NewDocument(Default()), status
	}
	status.Exists = true

	doc, err := Parse(data)
	if err != nil {
		status.Err = configerr.CorruptDocument(path, describeDecodeError(err))
		return NewDocument(Default()), status
	}
	if unknown := doc.Unknown(); len(unknown) > 0 {
		status.Notes = append(status.Notes, fmt.Sprintf("unrecognised keys preserved: %s", strings.Join(unknown, ", ")))
	}
	return doc, status
}

// Parse decodes a preference document. Absent keys keep their defaults.
func Parse(data []byte) (*Document, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	doc := &Document{Config: cfg, defined: map[string]struct{}{}, raw: raw}
	doc.index(raw, nil, leafKinds())
	return doc, nil
}

func (d *Document) index(table map[string]any, prefix []string, schema map[string]reflect.Kind) {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path := append(append([]string(nil), prefix...), key)
		dotted := strings.Join(path, ".")
		kind, known := schema[dotted]
		if !known {
			d.unknown = append(d.unknown, path)
			continue
		}
		if kind == reflect.Struct {
			if nested, ok := table[key].(map[string]any); ok {
				d.index(nested, path, schema)
			}
			continue
		}
		d.defined[dotted] = struct{}{}
	}
}

// Marshal renders the document. Output is deterministic for equal documents.
func (d *Document) Marshal() ([]byte, error) {
	out, err := toml.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	if len(d.unknown) == 0 {
		return out, nil
	}
	merged := map[string]any{}
	if err := toml.Unmarshal(out, &merged); err != nil {
		return nil, fmt.Errorf("re-read encoded preferences: %w", err)
	}
	for _, path := range d.unknown {
		if value, ok := lookupPath(d.raw, path); ok {
			setPath(merged, path, value)
		}
	}
	out, err = toml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	return out, nil
}

// Save writes the document atomically.
func (d *Document) Save(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// WriteTemplate writes the example document to path unless a file already
// exists there. It reports whether it wrote anything.
func WriteTemplate(path string) (bool, error) {
	exists, err := fileutil.Exists(path)
	if err != nil {
		return false, fmt.Errorf("check preferences: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := fileutil.WriteFileAtomic(path, template, 0o644); err != nil {
		return false, fmt.Errorf("write preferences template: %w", err)
	}
	return true, nil
}

func describeDecodeError(err error) string {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Sprintf("line %d, column %d: %s", row, col, decodeErr.Error())
	}
	return err.Error()
}

func lookupPath(table map[string]any, path []string) (any, bool) {
	var current any = table
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(table map[string]any, path []string, value any) {
	current := table
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}
