package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/noise/edwards25519"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// Version identifies what keystore version was used on the file.
	Version int = 1

	// PlainTextFileSizeUpperBound is the byte size upper bound for plain text key files.
	PlainTextFileSizeUpperBound = 400

	DefaultKDF    = "scrypt"
	DefaultCipher = "secretbox"

	DefaultScryptN      int = 262144
	DefaultScryptP      int = 1
	DefaultScryptR      int = 8
	DefaultScryptKeyLen int = 32
	DefaultSaltLen      int = 32
)

var (
	ErrCouldNotOpenCipher = errors.New("could not open secret box cipher text")
	ErrUnsupportedKey     = errors.New("unsupported key struct")
)

// PlainTextKey is the structure for plain text keys.
type PlainTextKey struct {
	Account     string    `json:"account"`
	PrivateKey  string    `json:"key"`
	Version     int       `json:"version"`
	TimeCreated time.Time `json:"created"`
}

func NewPlainTextKey(k *Keypair) *PlainTextKey {
	return &PlainTextKey{
		Account:     k.Address().String(),
		PrivateKey:  k.PrivateKeyHex(),
		Version:     Version,
		TimeCreated: time.Now(),
	}
}

func (pt *PlainTextKey) Keypair() (*Keypair, error) {
	return KeypairFromHex(pt.PrivateKey)
}

// EncryptedKey holds a private key sealed with a password-derived key.
type EncryptedKey struct {
	Account     string    `json:"account"`
	Version     int       `json:"version"`
	TimeCreated time.Time `json:"created"`
	Crypto      Crypto    `json:"crypto"`
}

// Crypto contains all of the parameters for the cipher and KDF.
type Crypto struct {
	Cipher       string          `json:"cipher"`
	CipherText   string          `json:"cipherText"`
	CipherParams SecretboxParams `json:"cipherParams"`
	KDF          string          `json:"kdf"`
	KDFParams    ScryptParams    `json:"kdfParams"`
}

type ScryptParams struct {
	N      int    `json:"n"`
	P      int    `json:"p"`
	R      int    `json:"r"`
	KeyLen int    `json:"keyLen"`
	Salt   string `json:"salt"`
}

type SecretboxParams struct {
	Nonce string `json:"nonce"`
}

// DefaultScryptParams returns the default KDF parameters with a fresh salt.
func DefaultScryptParams() (ScryptParams, error) {
	salt := make([]byte, DefaultSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return ScryptParams{}, err
	}

	return ScryptParams{
		N:      DefaultScryptN,
		R:      DefaultScryptR,
		P:      DefaultScryptP,
		KeyLen: DefaultScryptKeyLen,
		Salt:   hex.EncodeToString(salt),
	}, nil
}

// NewEncryptedKey seals k with password using the default KDF parameters.
func NewEncryptedKey(k *Keypair, password string) (*EncryptedKey, error) {
	params, err := DefaultScryptParams()
	if err != nil {
		return nil, err
	}

	return NewEncryptedKeyWithParams(k, password, params)
}

func NewEncryptedKeyWithParams(k *Keypair, password string, params ScryptParams) (*EncryptedKey, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	ek := &EncryptedKey{
		Account:     k.Address().String(),
		Version:     Version,
		TimeCreated: time.Now(),
		Crypto: Crypto{
			Cipher:       DefaultCipher,
			CipherParams: SecretboxParams{Nonce: hex.EncodeToString(nonce[:])},
			KDF:          DefaultKDF,
			KDFParams:    params,
		},
	}

	dk, err := ek.Crypto.deriveKey(password)
	if err != nil {
		return nil, err
	}

	privateKey := k.PrivateKey()
	ek.Crypto.CipherText = hex.EncodeToString(secretbox.Seal(nil, privateKey[:], &nonce, &dk))

	return ek, nil
}

// Decrypt derives the cipher key from password and opens the private key.
func (e *EncryptedKey) Decrypt(password string) (*Keypair, error) {
	if e.Crypto.Cipher != DefaultCipher {
		return nil, errors.Errorf("unsupported cipher %q (secretbox only)", e.Crypto.Cipher)
	}

	dk, err := e.Crypto.deriveKey(password)
	if err != nil {
		return nil, err
	}

	nonce, err := hex.DecodeString(e.Crypto.CipherParams.Nonce)
	if err != nil {
		return nil, err
	}

	if len(nonce) != 24 {
		return nil, errors.New("secretbox nonce has an incorrect length")
	}

	cipherText, err := hex.DecodeString(e.Crypto.CipherText)
	if err != nil {
		return nil, err
	}

	var nonceArr [24]byte
	copy(nonceArr[:], nonce)

	privateKeyBytes, ok := secretbox.Open(nil, cipherText, &nonceArr, &dk)
	if !ok || len(privateKeyBytes) != edwards25519.SizePrivateKey {
		return nil, ErrCouldNotOpenCipher
	}

	var privateKey edwards25519.PrivateKey
	copy(privateKey[:], privateKeyBytes)

	return KeypairFromPrivateKey(privateKey), nil
}

func (c *Crypto) deriveKey(password string) ([32]byte, error) {
	var dk [32]byte

	if c.KDF != DefaultKDF {
		return dk, errors.Errorf("unsupported key derivation function %q (scrypt only)", c.KDF)
	}

	p := c.KDFParams
	if p.KeyLen != len(dk) {
		return dk, errors.Errorf("derived key must be %d bytes long", len(dk))
	}

	salt, err := hex.DecodeString(p.Salt)
	if err != nil {
		return dk, err
	}

	key, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.KeyLen)
	if err != nil {
		return dk, err
	}

	copy(dk[:], key)

	return dk, nil
}

// Write writes a key struct to disk as JSON, readable only by its owner.
func Write(path string, key interface{}) error {
	switch key.(type) {
	case *PlainTextKey, *EncryptedKey:
	default:
		return ErrUnsupportedKey
	}

	buf, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(path, buf, 0600)
}

// IsProbablyEncrypted guesses from its size whether a key file is encrypted.
func IsProbablyEncrypted(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return fi.Size() > PlainTextFileSizeUpperBound, nil
}

// Load reads a plain text or encrypted key file. password is only used for
// encrypted files.
func Load(path string, password string) (*Keypair, error) {
	encrypted, err := IsProbablyEncrypted(path)
	if err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var keys *Keypair

	if encrypted {
		var ek EncryptedKey
		if err := json.Unmarshal(buf, &ek); err != nil {
			return nil, errors.Wrapf(err, "failed to decode key file %q", path)
		}

		if keys, err = ek.Decrypt(password); err != nil {
			return nil, err
		}
	} else {
		var pt PlainTextKey
		if err := json.Unmarshal(buf, &pt); err != nil {
			return nil, errors.Wrapf(err, "failed to decode key file %q", path)
		}

		if keys, err = pt.Keypair(); err != nil {
			return nil, err
		}
	}

	logger := log.Wallet("load")
	logger.Debug().
		Str("path", path).
		Bool("encrypted", encrypted).
		Str("address", keys.Address().String()).
		Msg("Loaded identity from key file.")

	return keys, nil
}
