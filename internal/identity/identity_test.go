package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameCanonicalisesRepresentations(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"uint vs string", uint(7), "7", true},
		{"int64 vs json number", int64(42), json.Number("42"), true},
		{"float vs uint64", float64(3), uint64(3), true},
		{"padded string", " 9 ", ID(9), true},
		{"different", uint(1), "2", false},
		{"zero never matches", uint(0), 0, false},
		{"garbage never matches", "abc", "abc", false},
		{"fractional float", 1.5, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Same(tc.a, tc.b))
		})
	}
}

func TestIDUnmarshalAcceptsNumberAndString(t *testing.T) {
	var payload struct {
		A ID `json:"a"`
		B ID `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 15, "b": "16"}`), &payload))
	assert.Equal(t, ID(15), payload.A)
	assert.Equal(t, ID(16), payload.B)

	var bad struct {
		A ID `json:"a"`
	}
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a": "x1"}`), &bad), ErrInvalid)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a": -3}`), &bad), ErrInvalid)
}

func TestIDMarshalsAsNumber(t *testing.T) {
	b, err := json.Marshal(map[string]ID{"id": 12})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12}`, string(b))
}
