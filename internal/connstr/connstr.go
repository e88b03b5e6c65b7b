// Package connstr parses semicolon-delimited Key=Value connection strings
// such as the SQL and storage connection strings kept in Key Vault.
//
// Keys are matched case-insensitively and surrounding whitespace is ignored.
// A value may be wrapped in braces or quotes to carry a literal semicolon:
//
//	Server=db.example.com;Uid=app;Pwd={p;ss};
package connstr

import (
	"fmt"
	"sort"
	"strings"
)

// Values holds parsed pairs keyed by lowercased key.
type Values map[string]string

// Parse splits raw into its pairs. Empty segments are skipped; a segment
// without '=' or with an empty key is an error. When a key repeats, the last
// value wins.
func Parse(raw string) (Values, error) {
	values := Values{}

	for i := 0; i < len(raw); {
		// Key runs to the first '='.
		eq := strings.IndexByte(raw[i:], '=')
		semi := strings.IndexByte(raw[i:], ';')
		if eq < 0 || (semi >= 0 && semi < eq) {
			end := len(raw)
			if semi >= 0 {
				end = i + semi
			}
			if seg := strings.TrimSpace(raw[i:end]); seg != "" {
				return nil, fmt.Errorf("connection string segment %q has no '='", seg)
			}
			i = end + 1
			continue
		}

		key := strings.ToLower(strings.TrimSpace(raw[i : i+eq]))
		if key == "" {
			return nil, fmt.Errorf("connection string has an empty key at offset %d", i)
		}
		i += eq + 1

		value, next, err := readValue(raw, i)
		if err != nil {
			return nil, fmt.Errorf("connection string key %q: %w", key, err)
		}
		values[key] = value
		i = next
	}

	return values, nil
}

// readValue reads one value starting at i and returns it with the index just
// past its terminating semicolon.
func readValue(raw string, i int) (string, int, error) {
	for i < len(raw) && raw[i] == ' ' {
		i++
	}
	if i >= len(raw) {
		return "", i, nil
	}

	var closer byte
	switch raw[i] {
	case '{':
		closer = '}'
	case '"', '\'':
		closer = raw[i]
	}

	if closer == 0 {
		end := strings.IndexByte(raw[i:], ';')
		if end < 0 {
			return strings.TrimSpace(raw[i:]), len(raw), nil
		}
		return strings.TrimSpace(raw[i : i+end]), i + end + 1, nil
	}

	// A doubled closer inside a quoted value is a literal closer.
	var b strings.Builder
	j := i + 1
	for {
		if j >= len(raw) {
			return "", j, fmt.Errorf("unterminated %c", raw[i])
		}
		c := raw[j]
		if c == closer {
			if j+1 < len(raw) && raw[j+1] == closer {
				b.WriteByte(closer)
				j += 2
				continue
			}
			j++
			break
		}
		b.WriteByte(c)
		j++
	}

	for j < len(raw) && raw[j] == ' ' {
		j++
	}
	if j < len(raw) {
		if raw[j] != ';' {
			return "", j, fmt.Errorf("unexpected %q after quoted value", raw[j])
		}
		j++
	}
	return b.String(), j, nil
}

// Lookup returns the value of the first key present, trying aliases in order.
func (v Values) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if val, ok := v[strings.ToLower(k)]; ok {
			return val, true
		}
	}
	return "", false
}

// Get is Lookup without the presence flag.
func (v Values) Get(keys ...string) string {
	val, _ := v.Lookup(keys...)
	return val
}

// Has reports whether any of the keys is present, even with an empty value.
func (v Values) Has(keys ...string) bool {
	_, ok := v.Lookup(keys...)
	return ok
}

// Redacted renders the pairs in key order with the values of sensitive keys
// replaced, for logs and the doctor command.
func (v Values) Redacted(sensitive ...string) string {
	hide := make(map[string]bool, len(sensitive))
	for _, k := range sensitive {
		hide[strings.ToLower(k)] = true
	}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		val := v[k]
		if hide[k] {
			val = "[REDACTED]"
		}
		fmt.Fprintf(&b, "%s=%s;", k, val)
	}
	return b.String()
}
