package signing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidKey is returned when a parameter key cannot be represented in a query string.
	ErrInvalidKey = errors.New("signing: invalid parameter key")
	// ErrUnsupportedValue is returned for values without a canonical text form.
	ErrUnsupportedValue = errors.New("signing: unsupported parameter value")
)

// KeyError reports the flat key that failed canonicalization.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Key)
}

func (e *KeyError) Unwrap() error { return e.Err }

// Param is a single flattened key/value pair.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of flattened pairs.
type Params []Param

// Get returns the first value stored under key.
func (p Params) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// Without returns a copy of p with every pair under key removed.
func (p Params) Without(key string) Params {
	out := make(Params, 0, len(p))
	for _, pair := range p {
		if pair.Key != key {
			out = append(out, pair)
		}
	}
	return out
}

// Flatten turns a nested parameter map into flat pairs. Nested maps use the
// bracket convention (a[b][c]) and slices repeat their key with a trailing [].
// The result is not sorted. Only keys containing [] may repeat; any other
// flat key produced twice is an ErrInvalidKey.
func Flatten(params map[string]any) (Params, error) {
	out := make(Params, 0, len(params))
	for key, value := range params {
		if err := validateSegment(key); err != nil {
			return nil, &KeyError{Key: key, Err: err}
		}
		var err error
		out, err = flattenValue(out, key, value)
		if err != nil {
			return nil, err
		}
	}
	seen := make(map[string]struct{}, len(out))
	for _, p := range out {
		if strings.Contains(p.Key, "[]") {
			continue
		}
		if _, dup := seen[p.Key]; dup {
			return nil, &KeyError{Key: p.Key, Err: fmt.Errorf("%w: duplicate key", ErrInvalidKey)}
		}
		seen[p.Key] = struct{}{}
	}
	return out, nil
}

func flattenValue(out Params, key string, value any) (Params, error) {
	switch v := value.(type) {
	case map[string]any:
		for child, nested := range v {
			if err := validateNestedSegment(child); err != nil {
				return nil, &KeyError{Key: key + "[" + child + "]", Err: err}
			}
			var err error
			out, err = flattenValue(out, key+"["+child+"]", nested)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case map[string]string:
		for child, nested := range v {
			if err := validateNestedSegment(child); err != nil {
				return nil, &KeyError{Key: key + "[" + child + "]", Err: err}
			}
			out = append(out, Param{Key: key + "[" + child + "]", Value: nested})
		}
		return out, nil
	case []any:
		for _, item := range v {
			var err error
			out, err = flattenValue(out, key+"[]", item)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case []string:
		for _, item := range v {
			out = append(out, Param{Key: key + "[]", Value: item})
		}
		return out, nil
	}
	text, err := ValueString(value)
	if err != nil {
		return nil, &KeyError{Key: key, Err: err}
	}
	return append(out, Param{Key: key, Value: text}), nil
}

// ValueString returns the canonical text form of a scalar:
//
//	string            as is
//	bool              "true" / "false"
//	ints, uints       base 10
//	floats            shortest decimal without exponent
//	json.Number       the literal as received
//	decimal.Decimal   Decimal.String
//	time.Time         UTC, 2006-01-02T15:04:05Z
//	nil               ""
//	fmt.Stringer      String()
func ValueString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case decimal.Decimal:
		return v.String(), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", nil
		}
		return v.String(), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
}

// validateSegment rejects key segments that would corrupt the query string
// or collide with the bracket notation.
func validateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c <= ' ' || c >= 0x7f:
			return ErrInvalidKey
		case strings.IndexByte("&=#?%+", c) >= 0:
			return ErrInvalidKey
		}
	}
	return nil
}

// validateNestedSegment also rejects brackets, which inside a child key would
// let two different structures flatten to the same key.
func validateNestedSegment(segment string) error {
	if strings.ContainsAny(segment, "[]") {
		return fmt.Errorf("%w: bracket in nested key", ErrInvalidKey)
	}
	return validateSegment(segment)
}

// Sort orders pairs byte-wise by key. Repeated keys (slice members) are
// ordered by value so the output depends only on content.
func Sort(p Params) {
	sort.SliceStable(p, func(i, j int) bool {
		if p[i].Key != p[j].Key {
			return p[i].Key < p[j].Key
		}
		return p[i].Value < p[j].Value
	})
}

// Encode serializes pairs as key=value joined by &. Keys are written verbatim
// (they are validated during flattening) and values are percent-encoded.
// The same string is used as the query string and as the signed message.
func Encode(p Params) string {
	var b strings.Builder
	for i, pair := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pair.Key)
		b.WriteByte('=')
		b.WriteString(Escape(pair.Value))
	}
	return b.String()
}

// Canonicalize flattens, sorts and encodes params.
func Canonicalize(params map[string]any) (string, error) {
	flat, err := Flatten(params)
	if err != nil {
		return "", err
	}
	Sort(flat)
	return Encode(flat), nil
}

const upperhex = "0123456789ABCDEF"

// Escape percent-encodes every byte outside the RFC 3986 unreserved set.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
