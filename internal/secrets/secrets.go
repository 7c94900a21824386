// Package secrets owns the credential document (.env).
//
// Values are parsed and written with godotenv and never leave this package in
// cleartext except through Secret.Reveal. Everything meant for humans goes
// through Mask, and parse errors are re-described by line number so document
// content cannot leak into logs or reports.
package secrets

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"alchemux/internal/configerr"
	"alchemux/internal/fileutil"
)

// Recognised credential keys.
const (
	S3AccessKey       = "S3_ACCESS_KEY"
	S3SecretKey       = "S3_SECRET_KEY"
	GCPServiceAccount = "GCP_SA_KEY_BASE64"
	OAuthClientID     = "OAUTH_CLIENT_ID"
	OAuthClientSecret = "OAUTH_CLIENT_SECRET"
)

// KnownKeys lists the recognised credential keys in display order.
var KnownKeys = []string{S3AccessKey, S3SecretKey, GCPServiceAccount, OAuthClientID, OAuthClientSecret}

// FileMode is the permission applied to every secret document write.
const FileMode os.FileMode = 0o600

//go:embed env.example
var template []byte

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Template returns the commented example document written on first run.
func Template() []byte {
	return append([]byte(nil), template...)
}

// RequiredFor returns the credential keys a storage destination needs.
func RequiredFor(destination string) []string {
	switch destination {
	case "s3":
		return []string{S3AccessKey, S3SecretKey}
	case "gcp":
		return []string{GCPServiceAccount}
	default:
		return nil
	}
}

// Document is a flat credential map.
type Document struct {
	values map[string]string
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: map[string]string{}}
}

// Has reports whether key is present with a non-empty value.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.values[key]) != ""
}

// Lookup returns the value for key as a Secret.
func (d *Document) Lookup(key string) (Secret, bool) {
	if !d.Has(key) {
		return Secret{}, false
	}
	return Secret{value: d.values[key]}, true
}

// Set stores value under key.
func (d *Document) Set(key, value string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid secret key %q", key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("secret %s must be a single line", key)
	}
	if _, ok := encodeValue(key, value); !ok {
		return fmt.Errorf("secret %s cannot be stored in a .env file; avoid quote characters at its start or end", key)
	}
	d.values[key] = value
	return nil
}

// Delete removes key.
func (d *Document) Delete(key string) {
	delete(d.values, key)
}

// Keys returns the stored keys in sorted order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for key := range d.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (d *Document) Len() int {
	return len(d.values)
}

// Missing returns the keys from want that are absent or empty.
func (d *Document) Missing(want []string) []string {
	var missing []string
	for _, key := range want {
		if !d.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Values returns every non-empty value. It exists so loggers can register
// them for redaction.
func (d *Document) Values() []string {
	out := make([]string, 0, len(d.values))
	for _, key := range d.Keys() {
		if value := d.values[key]; value != "" {
			out = append(out, value)
		}
	}
	return out
}

// Marshal renders the document with a header comment.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Alchemux secrets. Managed file; keep it private.\n")
	if len(d.values) == 0 {
		return buf.Bytes(), nil
	}
	entries, err := marshalEntries(d.values)
	if err != nil {
		return nil, err
	}
	buf.WriteString(entries)
	return buf.Bytes(), nil
}

// Save writes the document atomically with FileMode.
func (d *Document) Save(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, FileMode); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	return nil
}

// Status describes how a Load went.
type Status struct {
	Path   string
	Exists bool
	Mode   os.FileMode
	Notes  []string
	// Err wraps configerr.ErrCorruptDocument for parse failures.
	Err error
}

// Corrupt reports whether the file exists but failed to parse.
func (s Status) Corrupt() bool {
	return errors.Is(s.Err, configerr.ErrCorruptDocument)
}

// InsecurePermissions reports whether group or other users can access the file.
func (s Status) InsecurePermissions() bool {
	return s.Exists && runtime.GOOS != "windows" && s.Mode.Perm()&0o077 != 0
}

// Load reads the secret document at path. It never returns a nil document.
func Load(path string) (*Document, Status) {
	status := Status{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			status.Notes = append(status.Notes, fmt.Sprintf("%s not found; no credentials configured", path))
		} else {
			status.Exists = true
			status.Err = fmt.Errorf("stat secrets: %w", err)
		}
		return NewDocument(), status
	}
	status.Exists = true
	status.Mode = info.Mode()

	data, err := os.ReadFile(path)
	if err != nil {
		status.Err = fmt.Errorf("read secrets: %w", err)
		return NewDocument(), status
	}
	doc, err := Parse(data)
	if err != nil {
		status.Err = configerr.CorruptDocument(path, err.Error())
		return NewDocument(), status
	}
	return doc, status
}

// Parse decodes dotenv content. Errors identify lines by number only.
func Parse(data []byte) (*Document, error) {
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err == nil && !validKeys(values) {
		err = errors.New("invalid key")
	}
	if err != nil {
		_, bad := Salvage(data)
		if len(bad) == 0 {
			return nil, errors.New("malformed content")
		}
		return nil, fmt.Errorf("malformed entry on line %s", joinInts(bad))
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Document{values: values}, nil
}

// Salvage recovers every well-formed single-line entry from damaged content
// and returns the line numbers it had to skip.
func Salvage(data []byte) (*Document, []int) {
	doc := NewDocument()
	var bad []int
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		values, err := godotenv.Unmarshal(trimmed)
		if err != nil || len(values) == 0 || !validKeys(values) {
			bad = append(bad, i+1)
			continue
		}
		for key, value := range values {
			doc.values[key] = value
		}
	}
	return doc, bad
}

// Rebuild renders the template followed by the entries of doc, so a rebuilt
// file keeps the guidance comments and any recovered credentials.
func Rebuild(doc *Document) ([]byte, error) {
	out := Template()
	if doc == nil || doc.Len() == 0 {
		return out, nil
	}
	if !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	out = append(out, '\n')
	entries, err := marshalEntries(doc.values)
	if err != nil {
		return nil, err
	}
	out = append(out, entries...)
	return out, nil
}

// WriteTemplate writes the example document to path unless a file already
// exists there. It reports whether it wrote anything.
func WriteTemplate(path string) (bool, error) {
	exists, err := fileutil.Exists(path)
	if err != nil {
		return false, fmt.Errorf("check secrets: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := fileutil.WriteFileAtomic(path, template, FileMode); err != nil {
		return false, fmt.Errorf("write secrets template: %w", err)
	}
	return true, nil
}

// Mask describes a secret value without revealing any of it.
func Mask(value string) string {
	if value == "" {
		return "not set"
	}
	return fmt.Sprintf("set (%d chars)", utf8.RuneCountInString(value))
}

// marshalEntries renders sorted KEY=value lines. godotenv.Marshal is not
// used because it rewrites numeric-looking values ("007" becomes 7).
func marshalEntries(values map[string]string) (string, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		encoded, ok := encodeValue(key, values[key])
		if !ok {
			return "", fmt.Errorf("secret %s cannot be stored in a .env file", key)
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(encoded)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// encodeValue returns the first quoting that godotenv reads back as exactly
// value. A value that no quoting preserves (for example one starting with a
// quote and ending in a backslash) is refused.
func encodeValue(key, value string) (string, bool) {
	candidates := []string{
		"'" + value + "'",
		`"` + doubleQuoteReplacer.Replace(value) + `"`,
		value,
	}
	for _, encoded := range candidates {
		if decodesTo(key, encoded, value) {
			return encoded, true
		}
	}
	return "", false
}

func decodesTo(key, encoded, want string) bool {
	if strings.ContainsAny(encoded, "\r\n") {
		return false
	}
	values, err := godotenv.Unmarshal(key + "=" + encoded + "\n")
	if err != nil || len(values) != 1 {
		return false
	}
	got, ok := values[key]
	return ok && got == want
}

var doubleQuoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"$", `\$`,
	"!", `\!`,
	"`", "\\`",
)

func validKeys(values map[string]string) bool {
	for key := range values {
		if !keyPattern.MatchString(key) {
			return false
		}
	}
	return true
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
