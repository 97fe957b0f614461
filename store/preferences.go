package store

import (
	"encoding/binary"

	"github.com/perlin-network/academy/ledger"
	"github.com/pkg/errors"
)

var (
	keyPrefs          = []byte("prefs/")
	keyCertShared     = []byte("/cert_shared/")
	keyLastViewCourse = []byte("/last_viewed_course")
)

// Preferences are per-account presentational choices. They never affect
// what the ledger reports.
type Preferences struct {
	kv KV
}

func NewPreferences(kv KV) *Preferences {
	return &Preferences{kv: kv}
}

func accountPrefix(account ledger.AccountID) []byte {
	key := make([]byte, 0, len(keyPrefs)+len(account))
	key = append(key, keyPrefs...)

	return append(key, account[:]...)
}

func certKey(account ledger.AccountID, certificate uint64) []byte {
	key := append(accountPrefix(account), keyCertShared...)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], certificate)

	return append(key, buf[:]...)
}

// SetCertificateShared records whether account chose to share a
// certificate.
func (p *Preferences) SetCertificateShared(account ledger.AccountID, certificate uint64, shared bool) error {
	key := certKey(account, certificate)

	if !shared {
		return errors.Wrap(p.kv.Delete(key), "failed to unshare certificate")
	}

	return errors.Wrap(p.kv.Put(key, []byte{1}), "failed to share certificate")
}

func (p *Preferences) CertificateShared(account ledger.AccountID, certificate uint64) (bool, error) {
	_, err := p.kv.Get(certKey(account, certificate))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}

	return false, err
}

// SharedCertificates lists the certificates account shared, in ID order.
func (p *Preferences) SharedCertificates(account ledger.AccountID) ([]uint64, error) {
	prefix := append(accountPrefix(account), keyCertShared...)

	var ids []uint64

	err := p.kv.Iterate(prefix, func(key, _ []byte) bool {
		if len(key) == len(prefix)+8 {
			ids = append(ids, binary.BigEndian.Uint64(key[len(prefix):]))
		}

		return true
	})

	return ids, err
}

func (p *Preferences) SetLastViewedCourse(account ledger.AccountID, course uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], course)

	return p.kv.Put(append(accountPrefix(account), keyLastViewCourse...), buf[:])
}

// LastViewedCourse returns 0 if account has not viewed a course yet.
func (p *Preferences) LastViewedCourse(account ledger.AccountID) (uint64, error) {
	buf, err := p.kv.Get(append(accountPrefix(account), keyLastViewCourse...))

	switch {
	case errors.Is(err, ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	case len(buf) != 8:
		return 0, errors.Errorf("malformed last viewed course of %d bytes", len(buf))
	}

	return binary.BigEndian.Uint64(buf), nil
}

// Forget drops every preference of account.
func (p *Preferences) Forget(account ledger.AccountID) error {
	batch := p.kv.NewWriteBatch()

	err := p.kv.Iterate(accountPrefix(account), func(key, _ []byte) bool {
		batch.Delete(key)
		return true
	})

	if err != nil {
		return err
	}

	if batch.Count() == 0 {
		return nil
	}

	return p.kv.CommitWriteBatch(batch)
}
