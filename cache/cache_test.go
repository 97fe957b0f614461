package cache

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/ledger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ledger.AccountID{'a'}
	bob   = ledger.AccountID{'b'}
)

func counter(n *int, val interface{}) Loader {
	return func(context.Context) (interface{}, error) {
		*n++
		return val, nil
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(nil, WithSize(2))

	a := Key{Kind: events.KindCourse, ID: 1}
	b := Key{Kind: events.KindCourse, ID: 2}

	c.Put(a, 1)
	c.Put(b, 2)

	_, ok := c.Get(a)
	assert.True(t, ok)

	c.Put(Key{Kind: events.KindCourse, ID: 3}, 3)

	_, ok = c.Get(b)
	assert.False(t, ok)

	val, ok := c.Get(a)
	assert.True(t, ok)
	assert.Equal(t, 1, val)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New(nil, WithSize(8))
	key := Key{Account: alice, Kind: events.KindProfile}

	var loads int

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(ctx, key, counter(&loads, "profile"))
		require.NoError(t, err)
		assert.Equal(t, "profile", v)
	}

	assert.Equal(t, 1, loads)

	boom := errors.New("boom")
	_, err := c.GetOrLoad(ctx, Key{Kind: events.KindCatalog}, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, c.Len())
}

func TestLoadRacingInvalidationIsNotStored(t *testing.T) {
	c := New(nil, WithSize(8))
	key := Key{Kind: events.KindCourse, ID: 7}

	v, err := c.GetOrLoad(context.Background(), key, func(context.Context) (interface{}, error) {
		c.Invalidate(key)
		return "old", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestMutationInvalidatesTouchedKeys(t *testing.T) {
	hub := events.NewHub()
	c := New(hub, WithSize(16))
	defer c.Close()

	course1 := Key{Kind: events.KindCourse, ID: 1}
	course2 := Key{Kind: events.KindCourse, ID: 2}
	aliceProgress := Key{Account: alice, Kind: events.KindProgress, ID: 1}
	bobProgress := Key{Account: bob, Kind: events.KindProgress, ID: 1}
	aliceProfile := Key{Account: alice, Kind: events.KindProfile}

	for _, k := range []Key{course1, course2, aliceProgress, bobProgress, aliceProfile} {
		c.Put(k, k.String())
	}

	hub.Publish(nil, &events.Mutation{Op: "enroll", Account: alice, Targets: []events.Target{
		{Kind: events.KindCourse, ID: 1},
		{Kind: events.KindProgress},
	}})

	_, ok := c.Get(course1)
	assert.False(t, ok)
	_, ok = c.Get(aliceProgress)
	assert.False(t, ok)

	for _, k := range []Key{course2, bobProgress, aliceProfile} {
		_, ok = c.Get(k)
		assert.True(t, ok, k.String())
	}
}

func TestIdentityChangePurges(t *testing.T) {
	hub := events.NewHub()
	c := New(hub, WithSize(16))
	defer c.Close()

	c.Put(Key{Kind: events.KindCatalog}, "catalog")
	c.Put(Key{Account: alice, Kind: events.KindProfile}, "profile")

	hub.Publish(nil, &events.IdentityChanged{Previous: alice, Current: bob})

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, bob, c.Active())
}

func TestVisibilityMarksActiveAccountStale(t *testing.T) {
	ctx := context.Background()

	hub := events.NewHub()
	c := New(hub, WithSize(16))
	defer c.Close()

	c.SetActive(alice)

	mine := Key{Account: alice, Kind: events.KindProfile}
	theirs := Key{Account: bob, Kind: events.KindProfile}

	var loads int

	_, err := c.GetOrLoad(ctx, mine, counter(&loads, 1))
	require.NoError(t, err)
	c.Put(theirs, 1)

	hub.Publish(nil, &events.VisibilityChanged{Visible: false})

	_, ok := c.Get(mine)
	assert.True(t, ok)

	hub.Publish(nil, &events.VisibilityChanged{Visible: true})

	_, ok = c.Get(mine)
	assert.False(t, ok)
	_, ok = c.Get(theirs)
	assert.True(t, ok)

	v, err := c.GetOrLoad(ctx, mine, counter(&loads, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, c.Len())
}
