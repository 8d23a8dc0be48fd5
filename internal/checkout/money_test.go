package checkout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"4.99", 499},
		{"0.99", 99},
		{"10", 1000},
		{"10.1", 1010},
		{"0.05", 5},
		{"123.45", 12345},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseCentsRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "abc", "4.999", "-1.00", "1.2.3"} {
		_, err := ParseCents(in)
		require.Error(t, err, in)
	}
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "9.99", FormatCents(999))
	require.Equal(t, "0.05", FormatCents(5))
	require.Equal(t, "30.30", FormatCents(3030))
	require.Equal(t, "10.00", FormatCents(1000))
}

func TestMultiplyPricePreservesPrecision(t *testing.T) {
	total, err := MultiplyPrice("10.10", 3)
	require.NoError(t, err)
	require.Equal(t, "30.30", total)

	total, err = MultiplyPrice("4.99", 2)
	require.NoError(t, err)
	require.Equal(t, "9.98", total)

	total, err = MultiplyPrice("0.99", 100)
	require.NoError(t, err)
	require.Equal(t, "99.00", total)
}

func TestMultiplyPriceRejectsNonPositiveQuantity(t *testing.T) {
	_, err := MultiplyPrice("4.99", 0)
	require.Error(t, err)
	_, err = MultiplyPrice("4.99", -2)
	require.Error(t, err)
}
