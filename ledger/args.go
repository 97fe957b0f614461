package ledger

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// EncodeArgs renders call arguments as a JSON array. Supported argument types
// are unsigned integers, bool, string, AccountID and slices of uint64,
// string or AccountID.
func EncodeArgs(args []interface{}) ([]byte, error) {
	var arena fastjson.Arena

	v, err := encodeArgs(&arena, args)
	if err != nil {
		return nil, err
	}

	return v.MarshalTo(nil), nil
}

func encodeArgs(arena *fastjson.Arena, args []interface{}) (*fastjson.Value, error) {
	arr := arena.NewArray()

	for i, arg := range args {
		v, err := encodeArg(arena, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "arg %d", i)
		}

		arr.SetArrayItem(i, v)
	}

	return arr, nil
}

func encodeArg(arena *fastjson.Arena, arg interface{}) (*fastjson.Value, error) {
	switch x := arg.(type) {
	case uint64:
		return arenaUint(arena, x), nil
	case uint32:
		return arenaUint(arena, uint64(x)), nil
	case uint8:
		return arenaUint(arena, uint64(x)), nil
	case int:
		if x < 0 {
			return nil, errors.Errorf("negative integer %d", x)
		}
		return arenaUint(arena, uint64(x)), nil
	case bool:
		if x {
			return arena.NewTrue(), nil
		}
		return arena.NewFalse(), nil
	case string:
		return arena.NewString(x), nil
	case AccountID:
		return arena.NewString(x.String()), nil
	case []uint64:
		arr := arena.NewArray()
		for i := range x {
			arr.SetArrayItem(i, arenaUint(arena, x[i]))
		}
		return arr, nil
	case []string:
		arr := arena.NewArray()
		for i := range x {
			arr.SetArrayItem(i, arena.NewString(x[i]))
		}
		return arr, nil
	case []AccountID:
		arr := arena.NewArray()
		for i := range x {
			arr.SetArrayItem(i, arena.NewString(x[i].String()))
		}
		return arr, nil
	case []interface{}:
		return encodeArgs(arena, x)
	}

	return nil, errors.Errorf("unsupported argument type %T", arg)
}

func arenaUint(arena *fastjson.Arena, n uint64) *fastjson.Value {
	return arena.NewNumberString(strconv.FormatUint(n, 10))
}

// DecodeArgs turns a JSON array into call arguments: numbers become uint64,
// strings stay strings and nested arrays become []interface{}.
func DecodeArgs(v *fastjson.Value) ([]interface{}, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil, nil
	}

	items, err := v.Array()
	if err != nil {
		return nil, errors.Wrap(err, "args must be an array")
	}

	args := make([]interface{}, 0, len(items))

	for i, item := range items {
		arg, err := decodeArg(item)
		if err != nil {
			return nil, errors.Wrapf(err, "arg %d", i)
		}

		args = append(args, arg)
	}

	return args, nil
}

func decodeArg(v *fastjson.Value) (interface{}, error) {
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.Uint64()
	case fastjson.TypeString:
		b, err := v.StringBytes()
		return string(b), err
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeArray:
		return DecodeArgs(v)
	}

	return nil, errors.Errorf("unsupported argument JSON type %s", v.Type())
}

// NormalizeArgs converts arguments to the form they take after a trip over
// the wire, so in-process and remote callers look the same to a contract.
func NormalizeArgs(args []interface{}) (Args, error) {
	raw, err := EncodeArgs(args)
	if err != nil {
		return nil, err
	}

	var parser fastjson.Parser

	v, err := parser.ParseBytes(raw)
	if err != nil {
		return nil, err
	}

	return DecodeArgs(v)
}

// Args are normalized call arguments.
type Args []interface{}

func (a Args) get(i int) (interface{}, error) {
	if i >= len(a) {
		return nil, errors.Errorf("missing arg %d", i)
	}

	return a[i], nil
}

func (a Args) Uint(i int) (uint64, error) {
	v, err := a.get(i)
	if err != nil {
		return 0, err
	}

	n, ok := v.(uint64)
	if !ok {
		return 0, errors.Errorf("arg %d must be an unsigned integer, got %T", i, v)
	}

	return n, nil
}

func (a Args) String(i int) (string, error) {
	v, err := a.get(i)
	if err != nil {
		return "", err
	}

	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("arg %d must be a string, got %T", i, v)
	}

	return s, nil
}

func (a Args) Bool(i int) (bool, error) {
	v, err := a.get(i)
	if err != nil {
		return false, err
	}

	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("arg %d must be a bool, got %T", i, v)
	}

	return b, nil
}

func (a Args) Account(i int) (AccountID, error) {
	s, err := a.String(i)
	if err != nil {
		return ZeroAccountID, err
	}

	return ParseAccountID(s)
}

func (a Args) Uints(i int) ([]uint64, error) {
	v, err := a.get(i)
	if err != nil {
		return nil, err
	}

	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("arg %d must be an array, got %T", i, v)
	}

	out := make([]uint64, 0, len(items))

	for j, item := range items {
		n, ok := item.(uint64)
		if !ok {
			return nil, errors.Errorf("arg %d[%d] must be an unsigned integer, got %T", i, j, item)
		}

		out = append(out, n)
	}

	return out, nil
}

func (a Args) Strings(i int) ([]string, error) {
	v, err := a.get(i)
	if err != nil {
		return nil, err
	}

	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("arg %d must be an array, got %T", i, v)
	}

	out := make([]string, 0, len(items))

	for j, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Errorf("arg %d[%d] must be a string, got %T", i, j, item)
		}

		out = append(out, s)
	}

	return out, nil
}
