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

// Package academy ties the ledger facade, aggregation, write orchestration,
// quiz lifecycle, progress tracking and view-model caching together behind a
// single client for presentation layers.
package academy

import (
	"context"

	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/cache"
	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
	"github.com/perlin-network/academy/orchestrator"
	"github.com/perlin-network/academy/quiz"
	"github.com/perlin-network/academy/store"
	"github.com/perlin-network/academy/tracker"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Client is the entry point of presentation layers. Write operations are
// those of the embedded orchestrator; reads go through the view-model cache.
type Client struct {
	*orchestrator.Orchestrator

	facade  *ledger.Facade
	reader  *ledger.Reader
	hub     *events.Hub
	metrics *metrics.Metrics

	agg     *aggregate.Aggregator
	tracker *tracker.Tracker
	cache   *cache.Cache

	kv        store.KV
	ownsStore bool
	prefs     *store.Preferences

	unsubscribe func()
}

type options struct {
	fallback ledger.RPC
	chainID  uint64
	kv       store.KV
	owned    bool
	metrics  *metrics.Metrics
	tracer   trace.TracerProvider
}

type Option func(*options)

// WithFallback serves reads from rpc while no identity is connected.
func WithFallback(rpc ledger.RPC) Option {
	return func(o *options) {
		o.fallback = rpc
	}
}

func WithChainID(id uint64) Option {
	return func(o *options) {
		o.chainID = id
	}
}

// WithStore persists preferences to kv. The caller keeps ownership of kv.
func WithStore(kv store.KV) Option {
	return func(o *options) {
		o.kv = kv
		o.owned = false
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// New builds a client over primary for the given marketplace and reward
// token contracts. Without WithStore, preferences live in memory.
func New(primary ledger.RPC, market, token ledger.AccountID, opts ...Option) *Client {
	o := options{chainID: conf.GetChainID()}

	for _, opt := range opts {
		opt(&o)
	}

	if o.kv == nil {
		o.kv = store.NewInmem()
		o.owned = true
	}

	facadeOpts := []ledger.FacadeOption{ledger.WithMetrics(o.metrics)}
	if o.fallback != nil {
		facadeOpts = append(facadeOpts, ledger.WithFallback(o.fallback))
	}

	c := &Client{
		facade:    ledger.NewFacade(primary, o.chainID, facadeOpts...),
		hub:       events.NewHub(),
		metrics:   o.metrics,
		kv:        o.kv,
		ownsStore: o.owned,
		prefs:     store.NewPreferences(o.kv),
	}

	c.reader = ledger.NewReader(c.facade, market, token)
	c.agg = aggregate.New(c.reader, aggregate.WithMetrics(o.metrics))

	orchOpts := []orchestrator.Option{orchestrator.WithHub(c.hub)}
	if o.tracer != nil {
		orchOpts = append(orchOpts, orchestrator.WithTracerProvider(o.tracer))
	}

	c.Orchestrator = orchestrator.New(c.reader, orchOpts...)
	c.tracker = tracker.New(c.agg, c.hub)
	c.cache = cache.New(c.hub, cache.WithMetrics(o.metrics))

	// Profiles carry the token balance.
	c.unsubscribe = c.hub.Subscribe(nil, func(m *events.Mutation) bool {
		if m.Touches(events.KindBalance) {
			c.cache.Invalidate(cache.Key{Account: m.Account, Kind: events.KindProfile})
		}

		return true
	})

	return c
}

// Dial builds a client from conf: the primary node, the optional fallback
// endpoint and the contract addresses. An empty storeDir keeps preferences
// in memory.
func Dial(storeDir string, opts ...Option) (*Client, error) {
	market, err := ledger.ParseAccountID(conf.GetMarketContract())
	if err != nil {
		return nil, errors.Wrap(err, "invalid market contract address")
	}

	token, err := ledger.ParseAccountID(conf.GetTokenContract())
	if err != nil {
		return nil, errors.Wrap(err, "invalid token contract address")
	}

	primary, err := ledger.NewHTTP(ledger.PrimaryHTTPConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up the primary node")
	}

	var base []Option

	if cfg, ok := ledger.FallbackHTTPConfig(); ok {
		fallback, err := ledger.NewHTTP(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set up the fallback endpoint")
		}

		base = append(base, WithFallback(fallback))
	}

	kv, err := store.Open(storeDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open the local store")
	}

	base = append(base, func(o *options) {
		o.kv = kv
		o.owned = true
	})

	return New(primary, market, token, append(base, opts...)...), nil
}

func (c *Client) Close() error {
	c.unsubscribe()
	c.cache.Close()
	c.tracker.Close()
	c.Orchestrator.Close()

	if c.ownsStore {
		return c.kv.Close()
	}

	return nil
}

func (c *Client) Facade() *ledger.Facade {
	return c.facade
}

func (c *Client) Reader() *ledger.Reader {
	return c.reader
}

func (c *Client) Hub() *events.Hub {
	return c.hub
}

func (c *Client) Aggregator() *aggregate.Aggregator {
	return c.agg
}

func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

func (c *Client) Cache() *cache.Cache {
	return c.cache
}

func (c *Client) Preferences() *store.Preferences {
	return c.prefs
}

func (c *Client) Account() ledger.AccountID {
	return c.facade.Account()
}

func (c *Client) CheckNetwork(ctx context.Context) error {
	return c.facade.CheckNetwork(ctx)
}

// ConnectIdentity makes id the signer of every subsequent write. Connecting
// a different account drops every cached view model.
func (c *Client) ConnectIdentity(id ledger.Identity) {
	c.switchIdentity(id)
}

// Disconnect removes the connected identity. Reads fall back to the
// fallback endpoint, if any.
func (c *Client) Disconnect() {
	c.switchIdentity(nil)
}

func (c *Client) switchIdentity(id ledger.Identity) {
	var previous, current ledger.AccountID

	if prev := c.facade.SetIdentity(id); prev != nil {
		previous = prev.Address()
	}

	if id != nil {
		current = id.Address()
	}

	if previous == current {
		return
	}

	logger := log.Ledger("identity")
	logger.Info().
		Hex("previous", previous[:]).
		Hex("current", current[:]).
		Msg("Identity changed.")

	c.hub.Publish(nil, &events.IdentityChanged{Previous: previous, Current: current})
}

// SetVisible reports whether the presentation layer has focus. Regaining
// focus marks the active account's view models stale.
func (c *Client) SetVisible(visible bool) {
	c.hub.Publish(nil, &events.VisibilityChanged{Visible: visible})
}

// cached loads a view through the cache. Partial views are returned with
// their PartialAggregationFailure warning and are not stored.
func (c *Client) cached(ctx context.Context, key cache.Key, load func(ctx context.Context) (interface{}, aggregate.Report, error)) (interface{}, error) {
	return c.cache.GetOrLoad(ctx, key, func(ctx context.Context) (interface{}, error) {
		v, report, err := load(ctx)
		if err != nil {
			return nil, err
		}

		return v, report.Warning()
	})
}

// Course returns a course with its modules and lessons. A non-nil view may
// come with a PartialAggregationFailure warning.
func (c *Client) Course(ctx context.Context, id uint64) (*aggregate.CourseView, error) {
	v, err := c.cached(ctx, cache.Key{Kind: events.KindCourse, ID: id}, func(ctx context.Context) (interface{}, aggregate.Report, error) {
		return c.agg.Course(ctx, id)
	})

	view, _ := v.(*aggregate.CourseView)

	return view, err
}

// Catalog returns every course the ledger lists.
func (c *Client) Catalog(ctx context.Context) ([]*ledger.Course, error) {
	v, err := c.cached(ctx, cache.Key{Kind: events.KindCatalog}, func(ctx context.Context) (interface{}, aggregate.Report, error) {
		return c.agg.Catalog(ctx)
	})

	courses, _ := v.([]*ledger.Course)

	return courses, err
}

func (c *Client) Instructor(ctx context.Context, account ledger.AccountID) (*aggregate.InstructorView, error) {
	v, err := c.cached(ctx, cache.Key{Kind: events.KindInstructor, Subject: account}, func(ctx context.Context) (interface{}, aggregate.Report, error) {
		return c.agg.Instructor(ctx, account)
	})

	view, _ := v.(*aggregate.InstructorView)

	return view, err
}

// Profile returns the balance, certificates and achievements of account, or
// of the connected account if account is zero.
func (c *Client) Profile(ctx context.Context, account ledger.AccountID) (*aggregate.ProfileView, error) {
	if account.IsZero() {
		account = c.Account()
	}

	if account.IsZero() {
		return nil, errs.New(errs.KindNoIdentity, "profile", "no account given and no identity connected")
	}

	v, err := c.cached(ctx, cache.Key{Account: account, Kind: events.KindProfile}, func(ctx context.Context) (interface{}, aggregate.Report, error) {
		return c.agg.Profile(ctx, account)
	})

	view, _ := v.(*aggregate.ProfileView)

	return view, err
}

// Progress returns the enrollment snapshot of the connected account.
func (c *Client) Progress(ctx context.Context) (*tracker.Snapshot, error) {
	account := c.Account()
	if account.IsZero() {
		return nil, errs.New(errs.KindNoIdentity, "progress", "no identity connected")
	}

	return c.tracker.Snapshot(ctx, account)
}

// Quiz returns a quiz controller for the connected account in course, with
// its state loaded.
func (c *Client) Quiz(ctx context.Context, course uint64, opts ...quiz.Option) (*quiz.Controller, error) {
	ctrl := quiz.New(c.agg, c.Orchestrator, course, append([]quiz.Option{quiz.WithMetrics(c.metrics)}, opts...)...)

	if err := ctrl.Refresh(ctx); err != nil {
		return ctrl, err
	}

	return ctrl, nil
}

// ViewCourse loads a course and remembers it as the connected account's
// last viewed course.
func (c *Client) ViewCourse(ctx context.Context, id uint64) (*aggregate.CourseView, error) {
	view, err := c.Course(ctx, id)
	if view == nil {
		return nil, err
	}

	if account := c.Account(); !account.IsZero() {
		if perr := c.prefs.SetLastViewedCourse(account, id); perr != nil {
			logger := log.Store()
			logger.Warn().Err(perr).Uint64("course_id", id).Msg("Failed to remember the last viewed course.")
		}
	}

	return view, err
}

// LastViewedCourse returns the course the connected account last viewed, or
// 0 if none.
func (c *Client) LastViewedCourse() (uint64, error) {
	account := c.Account()
	if account.IsZero() {
		return 0, errs.New(errs.KindNoIdentity, "last viewed course", "no identity connected")
	}

	return c.prefs.LastViewedCourse(account)
}

// ShareCertificate marks a certificate held by the connected account as
// shared on its public profile.
func (c *Client) ShareCertificate(ctx context.Context, id uint64, shared bool) error {
	const op = "share certificate"

	account := c.Account()
	if account.IsZero() {
		return errs.New(errs.KindNoIdentity, op, "no identity connected")
	}

	cert, err := c.reader.Certificate(ctx, id)
	if err != nil {
		return err
	}

	if cert.Recipient != account {
		return errs.Errorf(errs.KindValidation, op, "certificate %d is not held by %s", id, account.Short())
	}

	if shared && cert.Revoked {
		return errs.Errorf(errs.KindValidation, op, "certificate %d is revoked", id)
	}

	return c.prefs.SetCertificateShared(account, id, shared)
}

// SharedCertificates lists the certificates account shares publicly.
func (c *Client) SharedCertificates(account ledger.AccountID) ([]uint64, error) {
	return c.prefs.SharedCertificates(account)
}
