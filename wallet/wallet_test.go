package wallet

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(t *testing.T) ScryptParams {
	params, err := DefaultScryptParams()
	require.NoError(t, err)

	// Keep tests fast.
	params.N = 1 << 10

	return params
}

func TestKeypairSignVerify(t *testing.T) {
	k, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("enroll 1")
	sig := k.Sign(msg)

	assert.True(t, Verify(k.Address(), msg, sig))
	assert.False(t, Verify(k.Address(), []byte("enroll 2"), sig))

	loaded, err := KeypairFromHex(k.PrivateKeyHex())
	require.NoError(t, err)
	assert.Equal(t, k.Address(), loaded.Address())

	_, err = KeypairFromHex("abcd")
	assert.Error(t, err)
}

func TestKeyFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "academy-wallet")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	k, err := GenerateKeypair()
	require.NoError(t, err)

	plain := filepath.Join(dir, "plain.json")
	require.NoError(t, Write(plain, NewPlainTextKey(k)))

	encrypted, err := IsProbablyEncrypted(plain)
	require.NoError(t, err)
	assert.False(t, encrypted)

	loaded, err := Load(plain, "")
	require.NoError(t, err)
	assert.Equal(t, k.Address(), loaded.Address())

	ek, err := NewEncryptedKeyWithParams(k, "hunter2", testParams(t))
	require.NoError(t, err)

	sealed := filepath.Join(dir, "sealed.json")
	require.NoError(t, Write(sealed, ek))

	encrypted, err = IsProbablyEncrypted(sealed)
	require.NoError(t, err)
	assert.True(t, encrypted)

	loaded, err = Load(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, k.Address(), loaded.Address())

	_, err = Load(sealed, "wrong")
	assert.Equal(t, ErrCouldNotOpenCipher, err)

	assert.Equal(t, ErrUnsupportedKey, Write(filepath.Join(dir, "x.json"), k))
}
