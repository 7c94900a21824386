package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Entry is one flattened preference: a dotted TOML key and its display value.
type Entry struct {
	Key   string
	Value string
}

// Keys lists every preference key in document order.
func Keys() []string {
	entries := Default().Entries()
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return keys
}

// IsKnownKey reports whether key names a preference leaf.
func IsKnownKey(key string) bool {
	kind, ok := leafKinds()[key]
	return ok && kind != reflect.Struct
}

// Entries flattens c into dotted keys in document order.
func (c Config) Entries() []Entry {
	var out []Entry
	walkFields(reflect.ValueOf(c), "", func(key string, field reflect.Value) {
		out = append(out, Entry{Key: key, Value: formatField(field)})
	})
	return out
}

// SetValue parses raw according to the type of the field named by key and
// stores it. Lists are comma separated.
func (c *Config) SetValue(key, raw string) error {
	key = strings.TrimSpace(key)
	var target reflect.Value
	walkFields(reflect.ValueOf(c).Elem(), "", func(k string, field reflect.Value) {
		if k == key {
			target = field
		}
	})
	if !target.IsValid() {
		return fmt.Errorf("unknown preference %q", key)
	}
	raw = strings.TrimSpace(raw)
	switch target.Kind() {
	case reflect.String:
		target.SetString(raw)
	case reflect.Bool:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", key, raw)
		}
		target.SetBool(value)
	case reflect.Int:
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", key, raw)
		}
		target.SetInt(int64(value))
	case reflect.Slice:
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		target.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("%s: unsupported field type %s", key, target.Kind())
	}
	return nil
}

// leafKinds indexes schema leaves and tables by dotted key; tables map to
// reflect.Struct.
func leafKinds() map[string]reflect.Kind {
	kinds := make(map[string]reflect.Kind)
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name := tomlName(field)
			if name == "" {
				continue
			}
			key := joinKey(prefix, name)
			if field.Type.Kind() == reflect.Struct {
				kinds[key] = reflect.Struct
				walk(field.Type, key)
				continue
			}
			kinds[key] = field.Type.Kind()
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return kinds
}

func walkFields(v reflect.Value, prefix string, visit func(key string, field reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := tomlName(t.Field(i))
		if name == "" {
			continue
		}
		key := joinKey(prefix, name)
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			walkFields(field, key, visit)
			continue
		}
		visit(key, field)
	}
}

func tomlName(field reflect.StructField) string {
	tag := field.Tag.Get("toml")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func formatField(field reflect.Value) string {
	switch field.Kind() {
	case reflect.String:
		if field.String() == "" {
			return `""`
		}
		return field.String()
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Slice:
		parts := make([]string, field.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(field.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(field.Interface())
	}
}
