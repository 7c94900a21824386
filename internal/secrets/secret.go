package secrets

import (
	"fmt"
	"log/slog"
)

// Secret carries a credential value. Every formatting path prints the mask;
// only Reveal returns the value itself.
type Secret struct {
	value string
}

// Reveal returns the cleartext value for handing to a storage client.
func (s Secret) Reveal() string { return s.value }

// String implements fmt.Stringer with the masked form.
func (s Secret) String() string { return Mask(s.value) }

// GoString keeps %#v masked as well.
func (s Secret) GoString() string { return "secrets.Secret(" + Mask(s.value) + ")" }

// Format masks the value for every verb, including %v of enclosing structs.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(Mask(s.value)))
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(Mask(s.value)) }

// MarshalText keeps encoders from serialising the value.
func (s Secret) MarshalText() ([]byte, error) { return []byte(Mask(s.value)), nil }
