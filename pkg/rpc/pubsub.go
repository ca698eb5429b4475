package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = (wsPongTimeout * 9) / 10
	wsMaxMessage   = 64 * 1024

	// wsSendBuffer is the notification backlog a slow client may build
	// before it is disconnected.
	wsSendBuffer = 256
)

// PubSub serves accountSubscribe over websocket connections and fans out
// committed account changes to subscribers.
type PubSub struct {
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	render   renderer
	upgrader websocket.Upgrader

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	byKey  map[types.Pubkey]map[uint64]*subscription
	conns  map[*wsConn]struct{}
	closed bool
}

type subscription struct {
	id     uint64
	pubkey types.Pubkey
	opts   AccountInfoOptions
	conn   *wsConn
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	subs map[uint64]struct{} // guarded by PubSub.mu
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// NewPubSub creates a subscription hub reading accounts from db for
// jsonParsed notifications.
func NewPubSub(db accounts.AccountsDB, logger zerolog.Logger, m *metrics.Metrics) *PubSub {
	return &PubSub{
		logger:  logger,
		metrics: m,
		render:  renderer{db: db},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs:  make(map[uint64]*subscription),
		byKey: make(map[types.Pubkey]map[uint64]*subscription),
		conns: make(map[*wsConn]struct{}),
	}
}

// Subscriptions returns the number of live subscriptions.
func (p *PubSub) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// ServeHTTP upgrades the request and serves subscription requests until the
// client goes away.
func (p *PubSub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{
		conn: ws,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
		subs: make(map[uint64]struct{}),
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ws.Close()
		return
	}
	p.conns[c] = struct{}{}
	p.mu.Unlock()

	go p.writeLoop(c)
	p.readLoop(c)
}

func (p *PubSub) readLoop(c *wsConn) {
	defer func() {
		p.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		resp := p.handle(c, msg)
		out, err := json.Marshal(resp)
		if err != nil {
			p.logger.Error().Err(err).Msg("marshal websocket response")
			continue
		}
		if !p.enqueue(c, out) {
			return
		}
	}
}

func (p *PubSub) writeLoop(c *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *PubSub) handle(c *wsConn, msg []byte) RPCResponse {
	var req RPCRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "invalid JSON")}
	}
	var (
		result interface{}
		rpcErr *RPCError
	)
	switch req.Method {
	case "accountSubscribe":
		result, rpcErr = p.subscribe(c, req.Params)
	case "accountUnsubscribe":
		result, rpcErr = p.unsubscribe(c, req.Params)
	default:
		p.metrics.ObserveRPC("unknown", false)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", req.Method)),
			ID:      req.ID,
		}
	}
	p.metrics.ObserveRPC(req.Method, rpcErr == nil)
	if rpcErr != nil {
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: rpcErr, ID: req.ID}
	}
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: result, ID: req.ID}
}

// subscribe handles accountSubscribe. Params: [pubkey, {encoding, dataSlice}]
func (p *PubSub) subscribe(c *wsConn, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pk, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	opts, rpcErr := accountOptions(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}

	p.mu.Lock()
	p.nextID++
	sub := &subscription{id: p.nextID, pubkey: pk, opts: opts, conn: c}
	p.subs[sub.id] = sub
	if p.byKey[pk] == nil {
		p.byKey[pk] = make(map[uint64]*subscription)
	}
	p.byKey[pk][sub.id] = sub
	c.subs[sub.id] = struct{}{}
	n := len(p.subs)
	p.mu.Unlock()

	p.metrics.SetSubscriptions(n)
	return sub.id, nil
}

// unsubscribe handles accountUnsubscribe. Params: [subscription id]
func (p *PubSub) unsubscribe(c *wsConn, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var id uint64
	if err := json.Unmarshal(raw[0], &id); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid subscription id")
	}

	p.mu.Lock()
	sub, ok := p.subs[id]
	if !ok || sub.conn != c {
		p.mu.Unlock()
		return nil, NewRPCError(InvalidParams, "Invalid subscription id.")
	}
	p.removeLocked(sub)
	n := len(p.subs)
	p.mu.Unlock()

	p.metrics.SetSubscriptions(n)
	return true, nil
}

func (p *PubSub) removeLocked(sub *subscription) {
	delete(p.subs, sub.id)
	delete(sub.conn.subs, sub.id)
	if keyed := p.byKey[sub.pubkey]; keyed != nil {
		delete(keyed, sub.id)
		if len(keyed) == 0 {
			delete(p.byKey, sub.pubkey)
		}
	}
}

// drop removes a connection and its subscriptions.
func (p *PubSub) drop(c *wsConn) {
	p.mu.Lock()
	if _, ok := p.conns[c]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.conns, c)
	for id := range c.subs {
		p.removeLocked(p.subs[id])
	}
	n := len(p.subs)
	p.mu.Unlock()

	c.close()
	p.metrics.SetSubscriptions(n)
}

// enqueue queues msg without blocking. A full buffer drops the connection.
func (p *PubSub) enqueue(c *wsConn, msg []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		p.logger.Warn().Msg("websocket client too slow, disconnecting")
		go p.drop(c)
		return false
	}
}

type notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  notificationParams `json:"params"`
}

type notificationParams struct {
	Result       ContextualResult `json:"result"`
	Subscription uint64           `json:"subscription"`
}

// Publish sends an accountNotification for every subscribed account among
// deltas. Its signature matches runtime.CommitListener.
func (p *PubSub) Publish(slot types.Slot, deltas []types.AccountDelta) {
	type target struct {
		sub *subscription
		acc *types.Account
	}
	var targets []target

	p.mu.Lock()
	for _, d := range deltas {
		for _, sub := range p.byKey[d.Pubkey] {
			targets = append(targets, target{sub: sub, acc: d.NewAccount})
		}
	}
	p.mu.Unlock()

	for _, t := range targets {
		value, err := p.render.account(t.acc, t.sub.opts)
		if err != nil {
			p.logger.Warn().Err(err).Uint64("subscription", t.sub.id).Msg("render account notification")
			continue
		}
		n := notification{
			JSONRPC: JSONRPCVersion,
			Method:  "accountNotification",
			Params: notificationParams{
				Result:       ContextualResult{Context: Context{Slot: uint64(slot)}, Value: value},
				Subscription: t.sub.id,
			},
		}
		out, err := json.Marshal(n)
		if err != nil {
			p.logger.Error().Err(err).Msg("marshal account notification")
			continue
		}
		p.enqueue(t.sub.conn, out)
	}
}

// Close disconnects every client.
func (p *PubSub) Close() {
	p.mu.Lock()
	p.closed = true
	conns := make([]*wsConn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()
	for _, c := range conns {
		p.drop(c)
	}
}
