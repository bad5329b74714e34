package geocode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameMemoizesLookups(t *testing.T) {
	calls := 0
	r, err := New(func(lat, lon float64) (string, error) {
		calls++
		return "Kolkata", nil
	}, "", 16)
	require.NoError(t, err)

	assert.Equal(t, "Kolkata", r.Name(22.5726, 88.3639))
	assert.Equal(t, "Kolkata", r.Name(22.5726, 88.3639))
	// 11m 内的点命中同一个记忆键
	assert.Equal(t, "Kolkata", r.Name(22.57261, 88.36391))
	assert.Equal(t, 1, calls)
}

func TestNameLookupFailure(t *testing.T) {
	r, err := New(func(lat, lon float64) (string, error) {
		return "", errors.New("network down")
	}, "", 16)
	require.NoError(t, err)

	assert.Equal(t, "", r.Name(1, 2))
}

func TestNameWithoutLookup(t *testing.T) {
	r, err := New(nil, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "", r.Name(1, 2))
}

func TestEmergencyNumber(t *testing.T) {
	cases := map[string]string{
		"US": "911",
		"ca": "911",
		"GB": "112",
		"AU": "000",
		"JP": "110",
		"IN": "112",
		"DE": "112",
		"":   "112",
	}
	for country, want := range cases {
		assert.Equal(t, want, EmergencyNumber(country), "country %q", country)
	}
}
