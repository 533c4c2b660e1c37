package signing_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gocardless-connect/internal/signing"
)

func TestFlattenNested(t *testing.T) {
	flat, err := signing.Flatten(map[string]any{
		"subscription": map[string]any{
			"amount": "10.00",
			"user": map[string]any{
				"email": "a@example.com",
			},
		},
		"nonce": "abc",
	})
	require.NoError(t, err)
	signing.Sort(flat)
	require.Equal(t, signing.Params{
		{Key: "nonce", Value: "abc"},
		{Key: "subscription[amount]", Value: "10.00"},
		{Key: "subscription[user][email]", Value: "a@example.com"},
	}, flat)
}

func TestCanonicalizeOrderIndependent(t *testing.T) {
	a := map[string]any{}
	a["z"] = "1"
	a["a"] = map[string]any{"y": 2, "b": true}
	a["m"] = ""

	b := map[string]any{}
	b["m"] = ""
	b["a"] = map[string]any{"b": true, "y": 2}
	b["z"] = "1"

	for i := 0; i < 20; i++ {
		left, err := signing.Canonicalize(a)
		require.NoError(t, err)
		right, err := signing.Canonicalize(b)
		require.NoError(t, err)
		require.Equal(t, left, right)
	}
	got, err := signing.Canonicalize(a)
	require.NoError(t, err)
	require.Equal(t, "a[b]=true&a[y]=2&m=&z=1", got)
}

func TestCanonicalizeNestedMatchesFlatKey(t *testing.T) {
	nested, err := signing.Canonicalize(map[string]any{"a": map[string]any{"b": 1}})
	require.NoError(t, err)
	flat, err := signing.Canonicalize(map[string]any{"a[b]": 1})
	require.NoError(t, err)
	require.Equal(t, nested, flat)

	other, err := signing.Canonicalize(map[string]any{"a": map[string]any{"c": 1}})
	require.NoError(t, err)
	require.NotEqual(t, nested, other)
}

func TestCanonicalizeSortIsBytewise(t *testing.T) {
	got, err := signing.Canonicalize(map[string]any{"b": "1", "B": "2", "a_b": "3", "a[b]": "4"})
	require.NoError(t, err)
	// '[' (0x5B) sorts before '_' (0x5F) and uppercase before lowercase.
	require.Equal(t, "B=2&a[b]=4&a_b=3&b=1", got)
}

func TestValueStringForms(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"10.00", "10.00"},
		{true, "true"},
		{false, "false"},
		{1, "1"},
		{int64(-42), "-42"},
		{uint8(7), "7"},
		{1.5, "1.5"},
		{float64(100), "100"},
		{json.Number("1.0"), "1.0"},
		{decimal.RequireFromString("20.50"), "20.5"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)), "2024-01-02T02:04:05Z"},
	}
	for _, tc := range cases {
		got, err := signing.ValueString(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%T", tc.in)
	}

	_, err := signing.ValueString(struct{}{})
	require.ErrorIs(t, err, signing.ErrUnsupportedValue)
}

func TestEncodePercentEncodesValues(t *testing.T) {
	got := signing.Encode(signing.Params{
		{Key: "redirect_uri", Value: "https://example.com/cb?x=1&y=2"},
		{Key: "user[name]", Value: "Jo Bloggs+Co"},
		{Key: "empty", Value: ""},
		{Key: "safe", Value: "A-z_0.9~"},
	})
	require.Equal(t, "redirect_uri=https%3A%2F%2Fexample.com%2Fcb%3Fx%3D1%26y%3D2&user[name]=Jo%20Bloggs%2BCo&empty=&safe=A-z_0.9~", got)
	require.Equal(t, "%C3%A9", signing.Escape("é"))
}

func TestFlattenRejectsReservedKeys(t *testing.T) {
	for _, key := range []string{"", "a&b", "a=b", "a b", "a#", "a?b", "100%", "a+b", "é"} {
		_, err := signing.Flatten(map[string]any{key: "x"})
		require.ErrorIs(t, err, signing.ErrInvalidKey, "key %q", key)
	}

	_, err := signing.Flatten(map[string]any{"bill": map[string]any{"bad=key": "x"}})
	require.ErrorIs(t, err, signing.ErrInvalidKey)
	var keyErr *signing.KeyError
	require.True(t, errors.As(err, &keyErr))
	require.Equal(t, "bill[bad=key]", keyErr.Key)

	_, err = signing.Canonicalize(map[string]any{"a": map[string]any{"b][c": "1"}})
	require.ErrorIs(t, err, signing.ErrInvalidKey)
	_, err = signing.Flatten(map[string]any{"a": map[string]string{"[x]": "1"}})
	require.ErrorIs(t, err, signing.ErrInvalidKey)

	_, err = signing.Flatten(map[string]any{"a[b]": "1", "a": map[string]any{"b": "2"}})
	require.ErrorIs(t, err, signing.ErrInvalidKey)
	require.True(t, errors.As(err, &keyErr))
	require.Equal(t, "a[b]", keyErr.Key)
}

func TestFlattenAllowsBracketedTopLevelKey(t *testing.T) {
	got, err := signing.Canonicalize(map[string]any{"a[b]": 1})
	require.NoError(t, err)
	nested, err := signing.Canonicalize(map[string]any{"a": map[string]any{"b": 1}})
	require.NoError(t, err)
	require.Equal(t, nested, got)

	got, err = signing.Canonicalize(map[string]any{"a[]": "1", "a": []any{"2"}})
	require.NoError(t, err)
	require.Equal(t, "a[]=1&a[]=2", got)
}

func TestFlattenSlices(t *testing.T) {
	got, err := signing.Canonicalize(map[string]any{
		"bills": []any{
			map[string]any{"id": "B2", "status": "paid"},
			map[string]any{"id": "B1", "status": "paid"},
		},
		"tags": []string{"z", "a"},
	})
	require.NoError(t, err)
	require.Equal(t, "bills[][id]=B1&bills[][id]=B2&bills[][status]=paid&bills[][status]=paid&tags[]=a&tags[]=z", got)
}

func TestFlattenUnsupportedValue(t *testing.T) {
	_, err := signing.Flatten(map[string]any{"ch": make(chan int)})
	require.ErrorIs(t, err, signing.ErrUnsupportedValue)
}
