package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalWellKnownText(t *testing.T) {
	assert.Equal(t, "2vxsx-fae", AnonymousPrincipal.String())
	assert.Equal(t, "aaaaa-aa", ManagementPrincipal.String())
	assert.Equal(t, "rwlgt-iiaaa-aaaaa-aaaaa-cai", UnitIDFromSeq(0).String())
	assert.Equal(t, "rrkah-fqaaa-aaaaa-aaaaq-cai", UnitIDFromSeq(1).String())
	assert.Equal(t, "tasxg-7ryw7-s5kzi-2v6cw-sst2p-rwv3m-jhll4-gu3pz-hi3lr-jfc45-yqe", DerivePrincipal("alice").String())
}

func TestParsePrincipalRoundTrip(t *testing.T) {
	for _, p := range []Principal{
		AnonymousPrincipal,
		ManagementPrincipal,
		UnitIDFromSeq(42),
		DerivePrincipal("mintfactory"),
	} {
		parsed, err := ParsePrincipal(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestParsePrincipalRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"bad checksum", "rwlgt-iiaaa-aaaaa-aaaaa-caa"},
		{"not base32", "not-a-principal!"},
		{"uppercase", "RWLGT-IIAAA-AAAAA-AAAAA-CAI"},
		{"missing dashes", "rwlgtiiaaaaaaaaaaaaacai"},
		{"garbage", "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrincipal(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestPrincipalFromBytesLength(t *testing.T) {
	_, err := PrincipalFromBytes(make([]byte, MaxPrincipalLen))
	require.NoError(t, err)

	_, err = PrincipalFromBytes(make([]byte, MaxPrincipalLen+1))
	assert.Error(t, err)
}

func TestPrincipalPredicates(t *testing.T) {
	assert.True(t, AnonymousPrincipal.IsAnonymous())
	assert.False(t, UnitIDFromSeq(0).IsAnonymous())
	assert.True(t, Principal{}.IsManagement())
	assert.False(t, AnonymousPrincipal.IsManagement())
}

func TestPrincipalJSON(t *testing.T) {
	acct := Account{Owner: UnitIDFromSeq(0)}

	data, err := json.Marshal(acct)
	require.NoError(t, err)
	assert.Equal(t, `{"owner":"rwlgt-iiaaa-aaaaa-aaaaa-cai"}`, string(data))

	var decoded Account
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, acct, decoded)

	err = json.Unmarshal([]byte(`{"owner":"bogus"}`), &decoded)
	assert.Error(t, err)
}
