package store

import (
	"bytes"
	"sync"

	"github.com/huandu/skiplist"
	"github.com/pkg/errors"
)

type kvPair struct {
	key, value []byte
	delete     bool
}

var _ WriteBatch = (*inmemWriteBatch)(nil)

type inmemWriteBatch struct {
	pairs []kvPair
}

func (b *inmemWriteBatch) Put(key, value []byte) {
	b.pairs = append(b.pairs, kvPair{key: key, value: value})
}

func (b *inmemWriteBatch) Delete(key []byte) {
	b.pairs = append(b.pairs, kvPair{key: key, delete: true})
}

func (b *inmemWriteBatch) Clear() {
	b.pairs = b.pairs[:0]
}

func (b *inmemWriteBatch) Count() int {
	return len(b.pairs)
}

var _ KV = (*inmemKV)(nil)

// inmemKV keeps keys ordered in a skiplist so prefix scans match leveldb.
type inmemKV struct {
	sync.RWMutex
	db *skiplist.SkipList
}

func (s *inmemKV) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.db != nil {
		s.db.Init()
		s.db = nil
	}

	return nil
}

func (s *inmemKV) Get(key []byte) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}

	buf, found := s.db.GetValue(key)
	if !found {
		return nil, ErrNotFound
	}

	return append([]byte(nil), buf.([]byte)...), nil
}

func (s *inmemKV) Put(key, value []byte) error {
	s.Lock()
	defer s.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	s.set(key, value)

	return nil
}

func (s *inmemKV) set(key, value []byte) {
	_ = s.db.Set(append([]byte(nil), key...), append([]byte(nil), value...))
}

func (s *inmemKV) Delete(key []byte) error {
	s.Lock()
	defer s.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	_ = s.db.Remove(key)

	return nil
}

func (s *inmemKV) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	s.RLock()
	defer s.RUnlock()

	if s.db == nil {
		return ErrClosed
	}

	for elem := s.db.Front(); elem != nil; elem = elem.Next() {
		key := elem.Key().([]byte)

		if !bytes.HasPrefix(key, prefix) {
			if bytes.Compare(key, prefix) > 0 {
				break
			}

			continue
		}

		if !fn(append([]byte(nil), key...), append([]byte(nil), elem.Value.([]byte)...)) {
			break
		}
	}

	return nil
}

func (s *inmemKV) NewWriteBatch() WriteBatch {
	return new(inmemWriteBatch)
}

func (s *inmemKV) CommitWriteBatch(batch WriteBatch) error {
	wb, ok := batch.(*inmemWriteBatch)
	if !ok {
		return errors.New("inmem: not fed in a proper in-memory write batch")
	}

	s.Lock()
	defer s.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	for _, pair := range wb.pairs {
		if pair.delete {
			_ = s.db.Remove(pair.key)
		} else {
			s.set(pair.key, pair.value)
		}
	}

	return nil
}

func NewInmem() *inmemKV {
	var comparator skiplist.GreaterThanFunc = func(lhs, rhs interface{}) bool {
		return bytes.Compare(lhs.([]byte), rhs.([]byte)) == 1
	}

	return &inmemKV{db: skiplist.New(comparator)}
}
