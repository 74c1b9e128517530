package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"12.5", "12.50", true},
		{"1", "1.00", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.50", true},
		{"7.555", "7.56", true}, // half away from zero
		{"7.554", "7.55", true},
		{"-3", "-3.00", true},
		{"+4.1", "4.10", true},
		{".5", "0.50", true},
		{"5.", "5.00", true},
		{"1e2", "100.00", true},
		{"12,5", "12.50", true},
		{",5", "0.50", true},
		{"123456789012345", "123456789012345.00", true},
		{"1.5e-3", "0.00", true},
		{"1e20", "", false},
		{"1e200000000", "", false},
		{"1e-200000000", "", false},
		{"0e999999999", "", false},
		{"1234567890123456", "", false},
		{"1,234", "", false},
		{"1,234.56", "", false},
		{"1.234,56", "", false},
		{"1,2,3", "", false},
		{strings.Repeat("1", 65), "", false},
		{"0", "0.00", true},
		{"", "", false},
		{"   ", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"NaN", "", false},
		{"Infinity", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.out, got.String(), "input %q", tc.in)
	}
}

func TestMoneyZeroValue(t *testing.T) {
	var m Money
	assert.Equal(t, "0.00", m.String())
	assert.True(t, m.IsZero())
	assert.Equal(t, "1.25", m.Add(MoneyFromCents(125)).String())
}

func TestMoneyFromCents(t *testing.T) {
	m, err := ParseAmount("19.99")
	require.NoError(t, err)
	assert.True(t, m.Equal(MoneyFromCents(1999)))
}

func TestParseAmount_HugeExponentReturnsQuickly(t *testing.T) {
	for _, in := range []string{"1e200000000", "1e-200000000", "9e2147483647"} {
		start := time.Now()
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
		assert.Less(t, time.Since(start), time.Second, "input %q", in)
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(MoneyFromCents(1250))
	require.NoError(t, err)
	assert.JSONEq(t, `"12.50"`, string(data))

	var fromString, fromNumber Money
	require.NoError(t, json.Unmarshal([]byte(`"3.10"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`3.1`), &fromNumber))
	assert.True(t, fromString.Equal(fromNumber))

	var bad Money
	assert.Error(t, json.Unmarshal([]byte(`"NaN"`), &bad))
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "¥12.50", FormatCurrency("¥", MoneyFromCents(1250)))
	assert.Equal(t, "-€3.00", FormatCurrency("€", MoneyFromCents(-300)))
	assert.Equal(t, "¥0.00", FormatCurrency("¥", Money{}))
}
