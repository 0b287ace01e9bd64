package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a whole KRW amount. It decodes from `15000`, `"15000"` and
// `15000.0`; fractional values are rejected.
type Amount int64

// UnmarshalJSON accepts numbers, numeric strings and integral floats.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	v, err := parseAmount(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func parseAmount(s string) (Amount, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Amount(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("amount: %q is not a number", s)
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("amount: %q is not a whole number", s)
	}
	return Amount(f), nil
}

// Int64 returns the amount as the storage integer type.
func (a Amount) Int64() int64 { return int64(a) }
