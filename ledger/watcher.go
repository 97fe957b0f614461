package ledger

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/perlin-network/academy/log"
	"github.com/valyala/fastjson"
)

// Watcher streams transaction receipts from a node's websocket endpoint.
type Watcher struct {
	cfg HTTPConfig

	mu      sync.Mutex
	sockets []func()

	// OnError receives connection and decoding failures.
	OnError func(error)
}

func NewWatcher(cfg HTTPConfig) *Watcher {
	return &Watcher{
		cfg: cfg,
		OnError: func(err error) {
			logger := log.Ledger("watch")
			logger.Warn().Err(err).Msg("Transaction watcher error.")
		},
	}
}

// EstablishWS creates a websocket connection.
func (w *Watcher) EstablishWS(path string, query url.Values) (*websocket.Conn, error) {
	prot := "ws"
	if w.cfg.UseHTTPS {
		prot = "wss"
	}

	uri := url.URL{
		Scheme: prot,
		Host:   fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port),
		Path:   path,
	}

	if len(query) > 0 {
		uri.RawQuery = query.Encode()
	}

	timeout := w.cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
	}

	conn, _, err := dialer.Dial(uri.String(), nil)

	return conn, err
}

// Transactions calls fn with every receipt reported for sender. A zero
// sender watches every account. The returned func closes the stream.
func (w *Watcher) Transactions(sender AccountID, fn func(*Receipt)) (func(), error) {
	query := url.Values{}
	if !sender.IsZero() {
		query.Set("sender", sender.String())
	}

	ws, err := w.EstablishWS(RouteWSTransactions, query)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			_, message, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var parser fastjson.Parser

			v, err := parser.ParseBytes(message)
			if err != nil {
				w.OnError(err)
				continue
			}

			var r Receipt
			if err := r.UnmarshalValue(v); err != nil {
				w.OnError(err)
				continue
			}

			fn(&r)
		}
	}()

	cancel := func() {
		// Also kills the for loop above
		_ = ws.Close()
	}

	w.mu.Lock()
	w.sockets = append(w.sockets, cancel)
	w.mu.Unlock()

	return cancel, nil
}

// Close stops every stream opened by w.
func (w *Watcher) Close() {
	w.mu.Lock()
	sockets := w.sockets
	w.sockets = nil
	w.mu.Unlock()

	for _, cancel := range sockets {
		cancel()
	}
}
