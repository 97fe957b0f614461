// Package wallet provides signing identities for the ledger facade and the
// key files they are stored in.
package wallet

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/noise/edwards25519"
	"github.com/pkg/errors"
)

// Keypair is an edwards25519 identity able to sign transactions.
type Keypair struct {
	privateKey edwards25519.PrivateKey
	publicKey  edwards25519.PublicKey
}

var _ ledger.Identity = (*Keypair)(nil)

func GenerateKeypair() (*Keypair, error) {
	publicKey, privateKey, err := edwards25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate keypair")
	}

	return &Keypair{privateKey: privateKey, publicKey: publicKey}, nil
}

func KeypairFromPrivateKey(privateKey edwards25519.PrivateKey) *Keypair {
	return &Keypair{privateKey: privateKey, publicKey: privateKey.Public()}
}

// KeypairFromHex loads a hex-encoded private key.
func KeypairFromHex(s string) (*Keypair, error) {
	if len(s) != hex.EncodedLen(edwards25519.SizePrivateKey) {
		return nil, errors.Errorf("private key must be %d hex characters long", hex.EncodedLen(edwards25519.SizePrivateKey))
	}

	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "private key must be presented as valid hex")
	}

	var privateKey edwards25519.PrivateKey
	copy(privateKey[:], buf)

	return KeypairFromPrivateKey(privateKey), nil
}

func (k *Keypair) Address() ledger.AccountID {
	return ledger.AccountID(k.publicKey)
}

func (k *Keypair) Sign(msg []byte) ledger.Signature {
	return ledger.Signature(edwards25519.Sign(k.privateKey, msg))
}

func (k *Keypair) PrivateKey() edwards25519.PrivateKey {
	return k.privateKey
}

func (k *Keypair) PrivateKeyHex() string {
	return hex.EncodeToString(k.privateKey[:])
}

// Verify checks a signature made by the account's key.
func Verify(account ledger.AccountID, msg []byte, sig ledger.Signature) bool {
	return edwards25519.Verify(edwards25519.PublicKey(account), msg, edwards25519.Signature(sig))
}
