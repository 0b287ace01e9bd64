// Package identity canonicalises user and order identifiers that arrive as
// JSON numbers, JSON strings, path params or header values.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is returned for values that are not positive integers.
var ErrInvalid = errors.New("identity: invalid id")

// ID is a positive numeric identifier. It decodes from both `12` and `"12"`.
type ID uint64

// Parse canonicalises a textual identifier.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return ID(v), nil
}

// Of canonicalises the identifier representations used across the codebase.
func Of(v any) (ID, error) {
	switch x := v.(type) {
	case ID:
		if x == 0 {
			return 0, ErrInvalid
		}
		return x, nil
	case uint:
		return Of(ID(x))
	case uint64:
		return Of(ID(x))
	case int:
		if x <= 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalid, x)
		}
		return ID(x), nil
	case int64:
		if x <= 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalid, x)
		}
		return ID(x), nil
	case float64:
		if x <= 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalid, x)
		}
		return ID(x), nil
	case json.Number:
		return Parse(x.String())
	case string:
		return Parse(x)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalid, v)
	}
}

// Same is the single ownership comparison: both sides are canonicalised and
// any value that fails to parse never matches.
func Same(a, b any) bool {
	x, err := Of(a)
	if err != nil {
		return false
	}
	y, err := Of(b)
	if err != nil {
		return false
	}
	return x == y
}

// String renders the id in decimal.
func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Uint returns the id as the storage integer type.
func (id ID) Uint() uint { return uint(id) }

// UnmarshalJSON accepts numbers and numeric strings.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalid)
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*id = v
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// MarshalJSON renders the id as a JSON number.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}
