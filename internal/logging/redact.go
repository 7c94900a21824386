package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces every registered value in log output.
const RedactedValue = "[redacted]"

// Values shorter than wordRedactLength are only redacted where they stand
// alone as a token, so "abc" is hidden in "key=abc" but not in "abcdef".
const wordRedactLength = 4

type redactingHandler struct {
	inner    slog.Handler
	replacer *redactor
}

// NewRedactingHandler wraps inner so every occurrence of values in messages
// and attribute values is replaced with RedactedValue. With no usable values
// inner is returned unchanged.
func NewRedactingHandler(inner slog.Handler, values ...string) slog.Handler {
	replacer := newRedactor(values)
	if replacer == nil {
		return inner
	}
	return &redactingHandler{inner: inner, replacer: replacer}
}

type redactor struct {
	anywhere *strings.Replacer
	words    []string
}

func newRedactor(values []string) *redactor {
	seen := map[string]struct{}{}
	var long, short []string
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		if len(value) < wordRedactLength {
			short = append(short, value)
		} else {
			long = append(long, value)
		}
	}
	if len(long) == 0 && len(short) == 0 {
		return nil
	}
	r := &redactor{words: short}
	// Longest first so a value containing another is replaced whole.
	sort.Slice(long, func(i, j int) bool { return len(long[i]) > len(long[j]) })
	sort.Slice(r.words, func(i, j int) bool { return len(r.words[i]) > len(r.words[j]) })
	if len(long) > 0 {
		pairs := make([]string, 0, len(long)*2)
		for _, value := range long {
			pairs = append(pairs, value, RedactedValue)
		}
		r.anywhere = strings.NewReplacer(pairs...)
	}
	return r
}

// Replace returns s with every registered value hidden.
func (r *redactor) Replace(s string) string {
	if r.anywhere != nil {
		s = r.anywhere.Replace(s)
	}
	if len(r.words) == 0 {
		return s
	}
	var b strings.Builder
	changed := false
	for i := 0; i < len(s); {
		if word := r.wordAt(s, i); word != "" {
			b.WriteString(RedactedValue)
			i += len(word)
			changed = true
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	if !changed {
		return s
	}
	return b.String()
}

func (r *redactor) wordAt(s string, i int) string {
	if i > 0 && isWordByte(s[i-1]) {
		return ""
	}
	for _, word := range r.words {
		end := i + len(word)
		if !strings.HasPrefix(s[i:], word) {
			continue
		}
		if end < len(s) && isWordByte(s[end]) {
			continue
		}
		return word
	}
	return ""
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.replacer.Replace(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = h.redactAttr(attr)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(clean), replacer: h.replacer}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), replacer: h.replacer}
}

func (h *redactingHandler) redactAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.replacer.Replace(value.String()))
	case slog.KindGroup:
		group := value.Group()
		clean := make([]any, len(group))
		for i, member := range group {
			clean[i] = h.redactAttr(member)
		}
		return slog.Group(attr.Key, clean...)
	case slog.KindAny:
		var text string
		if err, ok := value.Any().(error); ok {
			text = err.Error()
		} else {
			text = fmt.Sprint(value.Any())
		}
		if redacted := h.replacer.Replace(text); redacted != text {
			return slog.String(attr.Key, redacted)
		}
		return slog.Attr{Key: attr.Key, Value: value}
	default:
		return slog.Attr{Key: attr.Key, Value: value}
	}
}
