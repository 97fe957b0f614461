package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/perlin-network/academy/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func() KV {
	return map[string]func() KV{
		"inmem": func() KV {
			return NewInmem()
		},
		"level": func() KV {
			db, err := NewLevelDB(filepath.Join(t.TempDir(), "level"))
			require.NoError(t, err)

			return db
		},
	}
}

func TestKV(t *testing.T) {
	for name, open := range backends(t) {
		open := open

		t.Run(name, func(t *testing.T) {
			db := open()
			defer db.Close()

			_, err := db.Get([]byte("missing"))
			assert.Equal(t, ErrNotFound, err)

			require.NoError(t, db.Put([]byte("exist"), []byte{}))

			val, err := db.Get([]byte("exist"))
			require.NoError(t, err)
			assert.Empty(t, val)

			wb := db.NewWriteBatch()
			wb.Put([]byte("b/2"), []byte("two"))
			wb.Put([]byte("b/1"), []byte("one"))
			wb.Put([]byte("c/1"), []byte("other"))
			wb.Put([]byte("a/1"), []byte("before"))
			wb.Delete([]byte("exist"))
			assert.Equal(t, 5, wb.Count())
			require.NoError(t, db.CommitWriteBatch(wb))

			_, err = db.Get([]byte("exist"))
			assert.Equal(t, ErrNotFound, err)

			var seen []string
			require.NoError(t, db.Iterate([]byte("b/"), func(key, value []byte) bool {
				seen = append(seen, fmt.Sprintf("%s=%s", key, value))
				return true
			}))
			assert.Equal(t, []string{"b/1=one", "b/2=two"}, seen)

			seen = seen[:0]
			require.NoError(t, db.Iterate([]byte("b/"), func(key, value []byte) bool {
				seen = append(seen, string(key))
				return false
			}))
			assert.Equal(t, []string{"b/1"}, seen)

			require.NoError(t, db.Delete([]byte("b/1")))
			_, err = db.Get([]byte("b/1"))
			assert.Equal(t, ErrNotFound, err)
		})
	}
}

func TestLevelDBReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "level")

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("exist"), []byte("value")))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Get([]byte("exist"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)
}

func TestPreferences(t *testing.T) {
	alice := ledger.AccountID{'a'}
	bob := ledger.AccountID{'b'}

	for name, open := range backends(t) {
		open := open

		t.Run(name, func(t *testing.T) {
			db := open()
			defer db.Close()

			p := NewPreferences(db)

			last, err := p.LastViewedCourse(alice)
			require.NoError(t, err)
			assert.Zero(t, last)

			require.NoError(t, p.SetLastViewedCourse(alice, 7))
			require.NoError(t, p.SetLastViewedCourse(bob, 9))

			last, err = p.LastViewedCourse(alice)
			require.NoError(t, err)
			assert.EqualValues(t, 7, last)

			require.NoError(t, p.SetCertificateShared(alice, 300, true))
			require.NoError(t, p.SetCertificateShared(alice, 2, true))
			require.NoError(t, p.SetCertificateShared(alice, 5, true))
			require.NoError(t, p.SetCertificateShared(alice, 5, false))
			require.NoError(t, p.SetCertificateShared(bob, 1, true))

			shared, err := p.CertificateShared(alice, 2)
			require.NoError(t, err)
			assert.True(t, shared)

			shared, err = p.CertificateShared(alice, 5)
			require.NoError(t, err)
			assert.False(t, shared)

			ids, err := p.SharedCertificates(alice)
			require.NoError(t, err)
			assert.Equal(t, []uint64{2, 300}, ids)

			require.NoError(t, p.Forget(alice))

			ids, err = p.SharedCertificates(alice)
			require.NoError(t, err)
			assert.Empty(t, ids)

			last, err = p.LastViewedCourse(bob)
			require.NoError(t, err)
			assert.EqualValues(t, 9, last)
		})
	}
}
