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

package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/buaazp/fasthttprouter"
	"github.com/fasthttp/websocket"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/sys"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true
	},
}

// Server exposes a Backend over the HTTP API spoken by HTTP and Watcher.
type Server struct {
	backend Backend
	timeout time.Duration

	router *fasthttprouter.Router
	server *fasthttp.Server

	sink     *sink
	unlisten func()

	parsers fastjson.ParserPool
	arenas  fastjson.ArenaPool
}

func NewServer(backend Backend) *Server {
	s := &Server{
		backend: backend,
		timeout: 30 * time.Second,
		router:  fasthttprouter.New(),
		sink:    newSink(),
	}

	s.route("GET", RouteLedger, s.ledgerStatus)
	s.route("GET", RouteNonce+"/:account", s.getNonce)
	s.route("POST", RouteContract+"/:address/query", s.query)
	s.route("POST", RouteTxSend, s.sendTransaction)
	s.route("GET", RouteTx+"/:id", s.getTransaction)
	s.route("GET", RouteWSTransactions, s.pollTransactions)

	s.server = &fasthttp.Server{Handler: s.router.Handler}

	go s.sink.run()

	s.unlisten = backend.OnReceipt(s.broadcast)

	return s
}

func (s *Server) route(method, path string, h fasthttp.RequestHandler) {
	s.router.Handle(method, path, recoverer(h))
}

// Handler is the request handler of the API, for embedding.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.router.Handler
}

// Serve accepts connections on ln until Shutdown. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	logger := log.Ledger("devnet")
	logger.Info().Str("addr", ln.Addr().String()).Msg("Started the devnet HTTP API server.")

	return s.server.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen to "+addr)
	}

	return s.Serve(ln)
}

func (s *Server) Shutdown() error {
	s.unlisten()
	s.sink.stop()

	return s.server.Shutdown()
}

func recoverer(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if rvr := recover(); rvr != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Panic: %+v\n", rvr)
				debug.PrintStack()

				ctx.Error(http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next(ctx)
	}
}

func (s *Server) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Server) render(ctx *fasthttp.RequestCtx, fn func(a *fastjson.Arena) *fastjson.Value) {
	a := s.arenas.Get()
	defer func() {
		a.Reset()
		s.arenas.Put(a)
	}()

	ctx.SetContentType("application/json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(fn(a).MarshalTo(nil))
}

func (s *Server) renderError(ctx *fasthttp.RequestCtx, status int, err error) {
	a := s.arenas.Get()
	defer func() {
		a.Reset()
		s.arenas.Put(a)
	}()

	o := a.NewObject()
	o.Set("status", a.NewString(http.StatusText(status)))
	o.Set("error", a.NewString(err.Error()))

	ctx.SetContentType("application/json")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBody(o.MarshalTo(nil))
}

// renderBackendError maps backend errors onto the status codes
// RequestError.Cause understands.
func (s *Server) renderBackendError(ctx *fasthttp.RequestCtx, err error) {
	var rejected *RejectedError

	switch {
	case errors.As(err, &rejected):
		s.renderError(ctx, http.StatusConflict, errors.New(rejected.Reason))
	case errors.Is(err, ErrNotFound):
		s.renderError(ctx, http.StatusNotFound, err)
	case errors.Is(err, ErrUnknownCall):
		s.renderError(ctx, http.StatusBadRequest, err)
	default:
		s.renderError(ctx, http.StatusInternalServerError, err)
	}
}

func (s *Server) accountParam(ctx *fasthttp.RequestCtx, name string) (AccountID, bool) {
	param, ok := ctx.UserValue(name).(string)
	if !ok {
		s.renderError(ctx, http.StatusBadRequest, errors.Errorf("could not cast %s into string", name))
		return ZeroAccountID, false
	}

	id, err := ParseAccountID(param)
	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, errors.Wrapf(err, "%s must be presented as valid hex", name))
		return ZeroAccountID, false
	}

	return id, true
}

func (s *Server) ledgerStatus(ctx *fasthttp.RequestCtx) {
	c, cancel := s.context()
	defer cancel()

	chainID, err := s.backend.ChainID(c)
	if err != nil {
		s.renderBackendError(ctx, err)
		return
	}

	height := s.backend.Height()

	s.render(ctx, func(a *fastjson.Arena) *fastjson.Value {
		o := a.NewObject()
		o.Set("chain_id", arenaUint(a, chainID))
		o.Set("height", arenaUint(a, height))
		o.Set("version", a.NewString(sys.Version))

		return o
	})
}

func (s *Server) getNonce(ctx *fasthttp.RequestCtx) {
	account, ok := s.accountParam(ctx, "account")
	if !ok {
		return
	}

	c, cancel := s.context()
	defer cancel()

	nonce, err := s.backend.Nonce(c, account)
	if err != nil {
		s.renderBackendError(ctx, err)
		return
	}

	s.render(ctx, func(a *fastjson.Arena) *fastjson.Value {
		o := a.NewObject()
		o.Set("nonce", arenaUint(a, nonce))

		return o
	})
}

func (s *Server) query(ctx *fasthttp.RequestCtx) {
	contract, ok := s.accountParam(ctx, "address")
	if !ok {
		return
	}

	p := s.parsers.Get()
	defer s.parsers.Put(p)

	v, err := p.ParseBytes(ctx.PostBody())
	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, errors.Wrap(err, "error parsing request body"))
		return
	}

	method := jsonString(v, "method")
	if method == "" {
		s.renderError(ctx, http.StatusBadRequest, errors.New("method must be specified"))
		return
	}

	args, err := DecodeArgs(v.Get("args"))
	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, err)
		return
	}

	c, cancel := s.context()
	defer cancel()

	result, err := s.backend.Query(c, Call{Contract: contract, Method: method, Args: args})
	if err != nil {
		s.renderBackendError(ctx, err)
		return
	}

	s.render(ctx, func(a *fastjson.Arena) *fastjson.Value {
		o := a.NewObject()
		o.Set("result", result)

		return o
	})
}

func (s *Server) sendTransaction(ctx *fasthttp.RequestCtx) {
	p := s.parsers.Get()
	defer s.parsers.Put(p)

	v, err := p.ParseBytes(ctx.PostBody())
	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, errors.Wrap(err, "error parsing request body"))
		return
	}

	tx, err := parseSignedTx(v)
	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, err)
		return
	}

	c, cancel := s.context()
	defer cancel()

	h, err := s.backend.SubmitSigned(c, tx)
	if err != nil {
		s.renderBackendError(ctx, err)
		return
	}

	s.render(ctx, func(a *fastjson.Arena) *fastjson.Value {
		o := a.NewObject()
		o.Set("tx_id", a.NewString(h.ID))

		return o
	})
}

func parseSignedTx(v *fastjson.Value) (SignedTx, error) {
	var (
		tx  SignedTx
		err error
	)

	if tx.Sender, err = jsonAccount(v, "sender"); err != nil {
		return tx, errors.Wrap(err, "sender")
	}

	if tx.Call.Contract, err = jsonAccount(v, "contract"); err != nil {
		return tx, errors.Wrap(err, "contract")
	}

	if tx.Call.Method = jsonString(v, "method"); tx.Call.Method == "" {
		return tx, errors.New("method must be specified")
	}

	if tx.Call.Args, err = DecodeArgs(v.Get("args")); err != nil {
		return tx, err
	}

	tx.Nonce = v.GetUint64("nonce")
	tx.ChainID = v.GetUint64("chain_id")

	sig, err := hex.DecodeString(jsonString(v, "signature"))
	if err != nil {
		return tx, errors.Wrap(err, "signature must be presented as valid hex")
	}

	if len(sig) != SizeSignature {
		return tx, errors.Errorf("signature must be %d bytes long", SizeSignature)
	}

	copy(tx.Signature[:], sig)

	return tx, nil
}

func (s *Server) getTransaction(ctx *fasthttp.RequestCtx) {
	id, ok := ctx.UserValue("id").(string)
	if !ok || id == "" {
		s.renderError(ctx, http.StatusBadRequest, errors.New("transaction ID must be specified"))
		return
	}

	c, cancel := s.context()
	defer cancel()

	r, err := s.backend.Lookup(c, id)
	if err != nil {
		s.renderBackendError(ctx, err)
		return
	}

	s.render(ctx, r.MarshalArena)
}

func (s *Server) pollTransactions(ctx *fasthttp.RequestCtx) {
	var sender AccountID

	if raw := ctx.QueryArgs().Peek("sender"); len(raw) > 0 {
		id, err := ParseAccountID(string(raw))
		if err != nil {
			s.renderError(ctx, http.StatusBadRequest, errors.Wrap(err, "sender must be presented as valid hex"))
			return
		}

		sender = id
	}

	err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		c := &client{sink: s.sink, conn: conn, sender: sender, send: make(chan []byte, 256)}
		s.sink.join(c)

		go c.readWorker()

		// The handler must stay active for as long as the connection is.
		c.writeWorker()
	})

	if err != nil {
		s.renderError(ctx, http.StatusBadRequest, errors.Wrap(err, "failed to init websocket session"))
	}
}

func (s *Server) broadcast(r *Receipt) {
	var a fastjson.Arena

	s.sink.broadcast(broadcastItem{sender: r.Sender, buf: r.MarshalArena(&a).MarshalTo(nil)})
}

type client struct {
	sink *sink
	conn *websocket.Conn

	sender AccountID
	send   chan []byte
}

func (c *client) readWorker() {
	defer func() {
		c.sink.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writeWorker() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type broadcastItem struct {
	sender AccountID
	buf    []byte
}

// sink fans receipts out to websocket clients watching their sender.
type sink struct {
	clients map[*client]struct{}

	items chan broadcastItem
	joins chan *client
	parts chan *client
	quit  chan struct{}
}

func newSink() *sink {
	return &sink{
		clients: make(map[*client]struct{}),
		items:   make(chan broadcastItem, 1024),
		joins:   make(chan *client),
		parts:   make(chan *client),
		quit:    make(chan struct{}),
	}
}

func (s *sink) run() {
	for {
		select {
		case <-s.quit:
			for c := range s.clients {
				delete(s.clients, c)
				close(c.send)
			}

			return
		case c := <-s.joins:
			s.clients[c] = struct{}{}
		case c := <-s.parts:
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
			}
		case item := <-s.items:
			for c := range s.clients {
				if !c.sender.IsZero() && c.sender != item.sender {
					continue
				}

				select {
				case c.send <- item.buf:
				default:
					delete(s.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (s *sink) join(c *client) {
	select {
	case s.joins <- c:
	case <-s.quit:
		close(c.send)
	}
}

func (s *sink) leave(c *client) {
	select {
	case s.parts <- c:
	case <-s.quit:
	}
}

func (s *sink) broadcast(item broadcastItem) {
	select {
	case s.items <- item:
	case <-s.quit:
	}
}

func (s *sink) stop() {
	close(s.quit)
}
