package ledger

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

var ErrInvalidHexLength = errors.New("invalid hex bytes length")

// UnmarshalableValue is implemented by every type decoded from a node
// response.
type UnmarshalableValue interface {
	UnmarshalValue(v *fastjson.Value) error
}

// MarshalableArena is implemented by every type a node renders.
type MarshalableArena interface {
	MarshalArena(arena *fastjson.Arena) *fastjson.Value
}

func jsonHex(v *fastjson.Value, dst []byte, keys ...string) error {
	i, err := hex.Decode(dst, v.GetStringBytes(keys...))
	if err != nil {
		return err
	}

	if i != len(dst) {
		return ErrInvalidHexLength
	}

	return nil
}

func jsonAccount(v *fastjson.Value, key string) (AccountID, error) {
	var id AccountID

	if err := jsonHex(v, id[:], key); err != nil {
		return id, errors.Wrapf(err, "failed to decode %q", key)
	}

	return id, nil
}

func jsonUints(v *fastjson.Value, key string) []uint64 {
	items := v.GetArray(key)
	out := make([]uint64, 0, len(items))

	for _, item := range items {
		out = append(out, item.GetUint64())
	}

	return out
}

func jsonStrings(v *fastjson.Value, key string) []string {
	items := v.GetArray(key)
	out := make([]string, 0, len(items))

	for _, item := range items {
		out = append(out, string(item.GetStringBytes()))
	}

	return out
}

func jsonTime(v *fastjson.Value, key string) time.Time {
	secs := v.GetInt64(key)
	if secs == 0 {
		return time.Time{}
	}

	return time.Unix(secs, 0).UTC()
}

func jsonString(v *fastjson.Value, key string) string {
	return string(v.GetStringBytes(key))
}

func arenaUints(arena *fastjson.Arena, ids []uint64) *fastjson.Value {
	arr := arena.NewArray()
	for i := range ids {
		arr.SetArrayItem(i, arenaUint(arena, ids[i]))
	}

	return arr
}

func arenaStrings(arena *fastjson.Arena, ss []string) *fastjson.Value {
	arr := arena.NewArray()
	for i := range ss {
		arr.SetArrayItem(i, arena.NewString(ss[i]))
	}

	return arr
}

func arenaBool(arena *fastjson.Arena, b bool) *fastjson.Value {
	if b {
		return arena.NewTrue()
	}

	return arena.NewFalse()
}

func arenaTime(arena *fastjson.Arena, t time.Time) *fastjson.Value {
	if t.IsZero() {
		return arena.NewNumberInt(0)
	}

	return arena.NewNumberString(fastjsonInt(t.Unix()))
}

func arenaAccount(arena *fastjson.Arena, id AccountID) *fastjson.Value {
	return arena.NewString(id.String())
}

// ValueUint64s decodes a query result holding a list of identifiers.
func ValueUint64s(v *fastjson.Value) ([]uint64, error) {
	items, err := v.Array()
	if err != nil {
		return nil, errors.Wrap(err, "expected an array of identifiers")
	}

	out := make([]uint64, 0, len(items))

	for i, item := range items {
		n, err := item.Uint64()
		if err != nil {
			return nil, errors.Wrapf(err, "identifier %d", i)
		}

		out = append(out, n)
	}

	return out, nil
}

func fastjsonInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
