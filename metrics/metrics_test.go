package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMetrics(ctx, 0)
	defer m.Stop()

	m.MarkQuery(time.Millisecond, nil)
	m.MarkQuery(time.Millisecond, errors.New("boom"))
	m.MarkPartial(2)
	m.MarkSubmitted()
	m.MarkConfirmed(time.Second)
	m.MarkCache(true)
	m.MarkCache(false)
	m.MarkCache(false)

	all := m.Snapshot()
	assert.EqualValues(t, 2, all["query.total"]["count"])
	assert.EqualValues(t, 1, all["query.failed"]["count"])
	assert.EqualValues(t, 2, all["aggregate.partial"]["count"])
	assert.EqualValues(t, 1, all["tx.confirmed"]["count"])
	assert.EqualValues(t, 1, all["cache.hits"]["count"])
	assert.EqualValues(t, 2, all["cache.misses"]["count"])
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.MarkQuery(time.Millisecond, nil)
		m.MarkRejected()
		m.MarkQuizReady(time.Second)
		m.Stop()
	})
	assert.Nil(t, m.Snapshot())
}
