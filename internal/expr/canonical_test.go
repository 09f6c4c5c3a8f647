package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"sorted keys", map[string]any{"zebra": 1, "alpha": 2}, `{"alpha":2,"zebra":1}`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"line separator", "a\u2028b", "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestCanonicalIsStable(t *testing.T) {
	a := MustParse(`$main.sum($price) > 10`, nil)
	b := MustParse(`$main.sum($price) > 10`, nil)

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
	assert.Contains(t, string(ca), `"op":"greaterThan"`)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(MustParse(`$x + 1`, nil))
	require.NoError(t, err)
	b, err := Fingerprint(MustParse(`$x + 2`, nil))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	_, err = Fingerprint(Lit(ExternalValue{External: fakeExternal("p")}))
	assert.Error(t, err)
}

func TestDigestDomainSeparation(t *testing.T) {
	data := []byte(`{"op":"literal","value":1}`)
	assert.NotEqual(t, Digest(DomainExpression, data), Digest(DomainPlan, data))
}
