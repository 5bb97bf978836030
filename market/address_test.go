package market

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0xAbCdEf0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", a.Hex())

	for _, bad := range []string{"", "abcdef0000000000000000000000000000000001", "0x1234", "0xzz00000000000000000000000000000000000000"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddressJSON(t *testing.T) {
	rec := ResearchRecord{ID: 3, Researcher: researcherAddr, TokenAddress: DeriveAddress(ownerAddr, 1)}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"researcher":"0x2000000000000000000000000000000000000002"`)

	var back ResearchRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)
}

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress(ownerAddr, 1)
	assert.Equal(t, a, DeriveAddress(ownerAddr, 1))
	assert.NotEqual(t, a, DeriveAddress(ownerAddr, 2))
	assert.NotEqual(t, a, DeriveAddress(buyerAddr, 1))
	assert.False(t, a.IsZero())
}

func TestUnits(t *testing.T) {
	v, err := ParseNative("0.1")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", v.String())
	assert.Equal(t, "0.1", FormatNative(v))

	v, err = ParseUnits("12", 2)
	require.NoError(t, err)
	assert.Equal(t, "1200", v.String())

	_, err = ParseUnits("0.001", 2)
	assert.Error(t, err)
	_, err = ParseNative("-1")
	assert.Error(t, err)
	_, err = ParseNative("abc")
	assert.Error(t, err)
	assert.Equal(t, "0", FormatNative(nil))
}
