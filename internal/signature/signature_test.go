package signature

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := Message("POST", "/api/contributions", 1700000000, NewNonce(), []byte(`{"value":"1"}`))
	sig, err := Sign(key, msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))

	raw, err := hex.DecodeString(sig[2:])
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, raw[64])

	addr, err := Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
}

func TestRecover_LowV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := Message("GET", "/x", 1, NewNonce(), nil)
	sig, err := Sign(key, msg)
	require.NoError(t, err)

	raw, _ := hex.DecodeString(sig[2:])
	raw[64] -= 27
	addr, err := Recover(msg, hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
}

func TestRecover_TamperedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce := NewNonce()
	sig, err := Sign(key, Message("POST", "/api/refunds", 10, nonce, nil))
	require.NoError(t, err)

	addr, err := Recover(Message("POST", "/api/refunds", 11, nonce, nil), sig)
	if err == nil {
		assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), addr)
	}
}

func TestRecover_Malformed(t *testing.T) {
	_, err := Recover([]byte("m"), "0x1234")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Recover([]byte("m"), "not-hex")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestMessageLayout(t *testing.T) {
	nonce := "6f1c2a4e-8b0d-4c3e-9a7f-1d2e3f4a5b6c"
	got := string(Message("DELETE", "/api/admin/whitelist/0xabc", 42, nonce, []byte("body")))
	assert.Equal(t, "DELETE\n/api/admin/whitelist/0xabc\n42\n"+nonce+"\nbody", got)
}

func TestNonce(t *testing.T) {
	a, b := NewNonce(), NewNonce()
	assert.NotEqual(t, a, b)
	assert.True(t, ValidNonce(a))

	for _, bad := range []string{"", "1", "not-a-uuid-not-a-uuid-not-a-uuid-xx", "{" + a + "}"} {
		assert.False(t, ValidNonce(bad), bad)
	}
}

func TestParseKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hex.EncodeToString(crypto.FromECDSA(key))

	parsed, err := ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)

	_, err = ParseKey("zz")
	assert.Error(t, err)
}
