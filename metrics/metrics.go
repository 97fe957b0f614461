// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
package metrics

import (
	"context"
	"time"

	"github.com/perlin-network/academy/log"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct {
	registry metrics.Registry

	queried       metrics.Meter
	queryFailures metrics.Meter
	partial       metrics.Counter

	submittedTX metrics.Meter
	confirmedTX metrics.Meter
	rejectedTX  metrics.Meter

	cacheHits   metrics.Meter
	cacheMisses metrics.Meter

	queryLatency   metrics.Timer
	confirmLatency metrics.Timer
	quizLatency    metrics.Timer
}

// NewMetrics registers every meter on a fresh registry. When interval is
// positive, a snapshot is logged every interval until ctx is done.
func NewMetrics(ctx context.Context, interval time.Duration) *Metrics {
	registry := metrics.NewRegistry()

	m := &Metrics{
		registry: registry,

		queried:       metrics.NewRegisteredMeter("query.total", registry),
		queryFailures: metrics.NewRegisteredMeter("query.failed", registry),
		partial:       metrics.NewRegisteredCounter("aggregate.partial", registry),

		submittedTX: metrics.NewRegisteredMeter("tx.submitted", registry),
		confirmedTX: metrics.NewRegisteredMeter("tx.confirmed", registry),
		rejectedTX:  metrics.NewRegisteredMeter("tx.rejected", registry),

		cacheHits:   metrics.NewRegisteredMeter("cache.hits", registry),
		cacheMisses: metrics.NewRegisteredMeter("cache.misses", registry),

		queryLatency:   metrics.NewRegisteredTimer("query.latency", registry),
		confirmLatency: metrics.NewRegisteredTimer("confirm.latency", registry),
		quizLatency:    metrics.NewRegisteredTimer("quiz.latency", registry),
	}

	if interval > 0 {
		go m.report(ctx, interval)
	}

	return m
}

func (m *Metrics) report(ctx context.Context, interval time.Duration) {
	logger := log.Metrics()

	for {
		select {
		case <-time.After(interval):
			logger.Info().
				Int64("query.total", m.queried.Count()).
				Int64("query.failed", m.queryFailures.Count()).
				Int64("aggregate.partial", m.partial.Count()).
				Int64("tx.submitted", m.submittedTX.Count()).
				Int64("tx.confirmed", m.confirmedTX.Count()).
				Int64("tx.rejected", m.rejectedTX.Count()).
				Int64("cache.hits", m.cacheHits.Count()).
				Int64("cache.misses", m.cacheMisses.Count()).
				Float64("rps.queried", m.queried.Rate1()).
				Str("query.latency.max", time.Duration(m.queryLatency.Max()).String()).
				Str("query.latency.mean", time.Duration(int64(m.queryLatency.Mean())).String()).
				Str("confirm.latency.max", time.Duration(m.confirmLatency.Max()).String()).
				Str("confirm.latency.mean", time.Duration(int64(m.confirmLatency.Mean())).String()).
				Str("quiz.latency.mean", time.Duration(int64(m.quizLatency.Mean())).String()).
				Msg("Updated metrics.")
		case <-ctx.Done():
			return
		}
	}
}

// The recording methods below accept a nil receiver so components can run
// without metrics.

func (m *Metrics) MarkQuery(took time.Duration, err error) {
	if m == nil {
		return
	}

	m.queried.Mark(1)
	m.queryLatency.Update(took)

	if err != nil {
		m.queryFailures.Mark(1)
	}
}

func (m *Metrics) MarkPartial(excluded int) {
	if m == nil || excluded == 0 {
		return
	}

	m.partial.Inc(int64(excluded))
}

func (m *Metrics) MarkSubmitted() {
	if m == nil {
		return
	}

	m.submittedTX.Mark(1)
}

func (m *Metrics) MarkConfirmed(took time.Duration) {
	if m == nil {
		return
	}

	m.confirmedTX.Mark(1)
	m.confirmLatency.Update(took)
}

func (m *Metrics) MarkRejected() {
	if m == nil {
		return
	}

	m.rejectedTX.Mark(1)
}

func (m *Metrics) MarkCache(hit bool) {
	if m == nil {
		return
	}

	if hit {
		m.cacheHits.Mark(1)
	} else {
		m.cacheMisses.Mark(1)
	}
}

func (m *Metrics) MarkQuizReady(waited time.Duration) {
	if m == nil {
		return
	}

	m.quizLatency.Update(waited)
}

// Snapshot returns every registered metric keyed by name.
func (m *Metrics) Snapshot() map[string]map[string]interface{} {
	if m == nil {
		return nil
	}

	return m.registry.GetAll()
}

func (m *Metrics) Stop() {
	if m == nil {
		return
	}

	m.queried.Stop()
	m.queryFailures.Stop()

	m.submittedTX.Stop()
	m.confirmedTX.Stop()
	m.rejectedTX.Stop()

	m.cacheHits.Stop()
	m.cacheMisses.Stop()
}
