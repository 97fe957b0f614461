package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ WriteBatch = (*leveldbWriteBatch)(nil)

type leveldbWriteBatch struct {
	batch *leveldb.Batch
}

func (b *leveldbWriteBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *leveldbWriteBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (b *leveldbWriteBatch) Clear() {
	b.batch.Reset()
}

func (b *leveldbWriteBatch) Count() int {
	return b.batch.Len()
}

var _ KV = (*leveldbKV)(nil)

type leveldbKV struct {
	dir string
	db  *leveldb.DB
}

func (l *leveldbKV) Close() error {
	return l.db.Close()
}

func (l *leveldbKV) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	return v, levelErr(err)
}

func (l *leveldbKV) Put(key, value []byte) error {
	return levelErr(l.db.Put(key, value, nil))
}

func (l *leveldbKV) Delete(key []byte) error {
	return levelErr(l.db.Delete(key, nil))
}

func (l *leveldbKV) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	for it.Next() {
		// The iterator reuses its buffers.
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)

		if !fn(key, value) {
			break
		}
	}

	return levelErr(it.Error())
}

func (l *leveldbKV) NewWriteBatch() WriteBatch {
	return &leveldbWriteBatch{
		batch: &leveldb.Batch{},
	}
}

func (l *leveldbKV) CommitWriteBatch(batch WriteBatch) error {
	wb, ok := batch.(*leveldbWriteBatch)
	if !ok {
		return errors.New("leveldb: not fed in a proper leveldb write batch")
	}

	return levelErr(l.db.Write(wb.batch, nil))
}

func levelErr(err error) error {
	switch err {
	case nil:
		return nil
	case leveldb.ErrNotFound:
		return ErrNotFound
	case leveldb.ErrClosed:
		return ErrClosed
	}

	return err
}

func NewLevelDB(dir string) (*leveldbKV, error) {
	opts := &opt.Options{
		Filter:       filter.NewBloomFilter(10),
		NoWriteMerge: true,
	}

	db, err := leveldb.OpenFile(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb store")
	}

	return &leveldbKV{
		dir: dir,
		db:  db,
	}, nil
}
