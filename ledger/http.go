package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/perlin-network/academy/conf"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"
)

const (
	RouteLedger   = "/ledger"
	RouteNonce    = "/nonce"
	RouteContract = "/contract"
	RouteTx       = "/tx"
	RouteTxSend   = "/tx/send"

	RouteWSTransactions = "/poll/tx"

	ReqPost = "POST"
	ReqGet  = "GET"
)

const JSONPoolSize = 8 // sane size of 8 arenas and parsers in a pool

var ErrNoHost = errors.New("no host provided")

type HTTPConfig struct {
	Host     string
	Port     uint16
	UseHTTPS bool
	Timeout  time.Duration

	// QueryRate caps queries per second. 0 disables the limit.
	QueryRate float64

	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
}

// PrimaryHTTPConfig builds the configuration of the primary node from conf.
func PrimaryHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:                conf.GetAPIHost(),
		Port:                conf.GetAPIPort(),
		UseHTTPS:            conf.GetHTTPS(),
		Timeout:             conf.GetRequestTimeout(),
		QueryRate:           conf.GetQueryRate(),
		ConfirmPollInterval: conf.GetConfirmPollInterval(),
		ConfirmTimeout:      conf.GetConfirmTimeout(),
	}
}

// FallbackHTTPConfig builds the configuration of the read-only endpoint from
// conf. ok is false when none is configured.
func FallbackHTTPConfig() (cfg HTTPConfig, ok bool) {
	if conf.GetFallbackHost() == "" {
		return cfg, false
	}

	cfg = PrimaryHTTPConfig()
	cfg.Host = conf.GetFallbackHost()
	cfg.Port = conf.GetFallbackPort()

	return cfg, true
}

// HTTP is an RPC speaking to a ledger node's HTTP API.
type HTTP struct {
	HTTPConfig

	url     string
	limiter *rate.Limiter

	parsers fastjson.ParserPool
	arenas  fastjson.ArenaPool

	nonces  nonces
	chainID uint64
}

var _ RPC = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.Host == "" {
		return nil, ErrNoHost
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.ConfirmPollInterval == 0 {
		cfg.ConfirmPollInterval = 500 * time.Millisecond
	}

	protocol := "http"
	if cfg.UseHTTPS {
		protocol = "https"
	}

	h := &HTTP{
		HTTPConfig: cfg,
		url: (&url.URL{
			Scheme: protocol,
			Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		}).String(),
	}

	if cfg.QueryRate > 0 {
		burst := int(cfg.QueryRate)
		if burst < 1 {
			burst = 1
		}

		h.limiter = rate.NewLimiter(rate.Limit(cfg.QueryRate), burst)
	}

	// Generate parsers and arenas
	for i := 0; i < JSONPoolSize; i++ {
		var a fastjson.Arena
		h.arenas.Put(&a)

		var p fastjson.Parser
		h.parsers.Put(&p)
	}

	return h, nil
}

// Request makes a request to a given path, with a given body and returns
// the result in raw bytes.
func (h *HTTP) Request(ctx context.Context, path string, method string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := h.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.URI().Update(h.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")

	if body != nil {
		req.SetBody(body)
	}

	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)

	if err := fasthttp.DoTimeout(req, res, timeout); err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", path)
	}

	if res.StatusCode() != http.StatusOK {
		e := ParseRequestError(res.Body())
		e.StatusCode = res.StatusCode()
		e.RequestBody = append([]byte(nil), req.Body()...)
		e.ResponseBody = append([]byte(nil), res.Body()...)

		return nil, e.mapped()
	}

	return append([]byte(nil), res.Body()...), nil
}

func (h *HTTP) ChainID(ctx context.Context) (uint64, error) {
	res, err := h.Request(ctx, RouteLedger, ReqGet, nil)
	if err != nil {
		return 0, err
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(res)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse ledger status")
	}

	id := v.GetUint64("chain_id")
	atomic.StoreUint64(&h.chainID, id)

	return id, nil
}

func (h *HTTP) Query(ctx context.Context, call Call) (*fastjson.Value, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	a := h.arenas.Get()
	o := a.NewObject()
	o.Set("method", a.NewString(call.Method))

	args, err := encodeArgs(a, call.Args)
	if err != nil {
		h.arenas.Put(a)
		return nil, err
	}

	o.Set("args", args)
	body := o.MarshalTo(nil)

	a.Reset()
	h.arenas.Put(a)

	path := fmt.Sprintf("%s/%s/query", RouteContract, call.Contract)

	res, err := h.Request(ctx, path, ReqPost, body)
	if err != nil {
		return nil, err
	}

	// The result outlives this call, so it gets a parser of its own.
	var parser fastjson.Parser

	v, err := parser.ParseBytes(res)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse query result")
	}

	result := v.Get("result")
	if result == nil {
		return nil, errors.Errorf("query %s returned no result", call.Method)
	}

	return result, nil
}

// Nonce fetches the last nonce the node accepted from account.
func (h *HTTP) Nonce(ctx context.Context, account AccountID) (uint64, error) {
	res, err := h.Request(ctx, RouteNonce+"/"+account.String(), ReqGet, nil)
	if err != nil {
		return 0, err
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(res)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse nonce")
	}

	return v.GetUint64("nonce"), nil
}

func (h *HTTP) nextNonce(ctx context.Context, account AccountID) (uint64, error) {
	if c, ok := h.nonces.get(account); ok {
		return c.Add(1), nil
	}

	last, err := h.Nonce(ctx, account)
	if err != nil {
		return 0, err
	}

	return h.nonces.set(account, last).Add(1), nil
}

func (h *HTTP) Submit(ctx context.Context, call Call, id Identity) (TxHandle, error) {
	sender := id.Address()

	chainID := atomic.LoadUint64(&h.chainID)
	if chainID == 0 {
		var err error

		if chainID, err = h.ChainID(ctx); err != nil {
			return TxHandle{}, err
		}
	}

	nonce, err := h.nextNonce(ctx, sender)
	if err != nil {
		return TxHandle{}, err
	}

	payload, err := SigningPayload(call, nonce, chainID)
	if err != nil {
		return TxHandle{}, err
	}

	sig := id.Sign(payload)

	a := h.arenas.Get()
	o := a.NewObject()

	args, err := encodeArgs(a, call.Args)
	if err != nil {
		h.arenas.Put(a)
		return TxHandle{}, err
	}

	o.Set("sender", a.NewString(sender.String()))
	o.Set("contract", a.NewString(call.Contract.String()))
	o.Set("method", a.NewString(call.Method))
	o.Set("args", args)
	o.Set("nonce", arenaUint(a, nonce))
	o.Set("chain_id", arenaUint(a, chainID))
	o.Set("signature", a.NewString(hex.EncodeToString(sig[:])))

	body := o.MarshalTo(nil)

	a.Reset()
	h.arenas.Put(a)

	res, err := h.Request(ctx, RouteTxSend, ReqPost, body)
	if err != nil {
		// Resynchronize the nonce on the next submission.
		h.nonces.reset(sender)
		return TxHandle{}, err
	}

	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(res)
	if err != nil {
		return TxHandle{}, errors.Wrap(err, "failed to parse send response")
	}

	txID := string(v.GetStringBytes("tx_id"))
	if txID == "" {
		return TxHandle{}, errors.New("node returned no tx_id")
	}

	return TxHandle{ID: txID, Sender: sender, Nonce: nonce, Submitted: time.Now()}, nil
}

// Lookup returns the current receipt of a transaction.
func (h *HTTP) Lookup(ctx context.Context, id string) (*Receipt, error) {
	res, err := h.Request(ctx, RouteTx+"/"+id, ReqGet, nil)
	if err != nil {
		return nil, err
	}

	var parser fastjson.Parser

	v, err := parser.ParseBytes(res)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse receipt")
	}

	var r Receipt
	if err := r.UnmarshalValue(v); err != nil {
		return nil, err
	}

	return &r, nil
}

// AwaitConfirmation polls the transaction until it is terminal or the
// confirmation timeout passes.
func (h *HTTP) AwaitConfirmation(ctx context.Context, th TxHandle) (*Receipt, error) {
	if h.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ConfirmTimeout)
		defer cancel()
	}

	for {
		r, err := h.Lookup(ctx, th.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if r != nil && r.Status.Terminal() {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "transaction %s was not confirmed", th.ID)
		case <-time.After(h.ConfirmPollInterval):
		}
	}
}
