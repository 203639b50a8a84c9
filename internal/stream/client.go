package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"casinogw/internal/backoff"
	"casinogw/internal/debuglog"
	"casinogw/internal/metrics"
	"casinogw/internal/proto"
)

const DefaultPendingCap = 64

var ErrWaitTimeout = errors.New("timed out waiting for event")

type Options struct {
	// BaseURL is the ledger's websocket root, e.g. ws://host:port.
	BaseURL string
	Origin  string
	Dialer  Dialer
	Backoff backoff.Policy
	// PendingCap bounds the queue kept per target; the oldest event is
	// dropped when full.
	PendingCap int
	// OnTransaction is told about every committed transaction seen.
	OnTransaction func(publicKeyHex string, nonce uint64)
	Metrics       *metrics.Metrics
	// Sleep waits between reconnect attempts; backoff.Sleep when nil.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client holds one updates connection and keeps it alive until Disconnect.
type Client struct {
	opts    Options
	metrics *metrics.Metrics

	mu        sync.Mutex
	filter    proto.Filter
	conn      Conn
	connected bool
	desired   bool
	gen       uint64
	cancel    context.CancelFunc
	bo        *backoff.Backoff

	pending map[string][]proto.Event
	subs    map[uint64]func(proto.Event)
	nextSub uint64
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Backoff == (backoff.Policy{}) {
		opts.Backoff = backoff.Reconnect
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = DefaultPendingCap
	}
	if opts.Sleep == nil {
		opts.Sleep = backoff.Sleep
	}
	return &Client{
		opts:    opts,
		metrics: opts.Metrics,
		bo:      opts.Backoff.New(),
		pending: make(map[string][]proto.Event),
		subs:    make(map[uint64]func(proto.Event)),
	}
}

func (c *Client) url(f proto.Filter) string {
	return strings.TrimRight(c.opts.BaseURL, "/") + "/updates/" + f.Hex()
}

// Connect dials synchronously and starts the read loop. A previous
// connection is replaced.
func (c *Client) Connect(ctx context.Context, f proto.Filter) error {
	conn, err := c.opts.Dialer.Dial(ctx, c.url(f), c.opts.Origin)
	if err != nil {
		return fmt.Errorf("stream connect %s: %w", f, err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.gen++
	gen := c.gen
	c.filter = f
	c.conn = conn
	c.connected = true
	c.desired = true
	c.cancel = cancel
	c.bo.Reset()
	c.mu.Unlock()

	c.metrics.IncStreamConnect()
	debuglog.Debugf("stream connected filter=%s", f)
	go c.run(loopCtx, gen, conn)
	return nil
}

// Disconnect closes the connection and stops reconnecting. Safe to call more
// than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desired = false
	c.connected = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Filter() proto.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired && c.gen == gen
}

func (c *Client) run(ctx context.Context, gen uint64, conn Conn) {
	for {
		c.readLoop(conn)
		if ctx.Err() != nil || !c.current(gen) {
			return
		}
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		conn = c.reconnect(ctx, gen)
		if conn == nil {
			return
		}
	}
}

func (c *Client) readLoop(conn Conn) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			debuglog.Debugf("stream read ended: %v", err)
			return
		}
		c.handle(msg)
	}
}

// reconnect dials with backoff until it succeeds or the client is told to
// stop. It returns nil in the latter case.
func (c *Client) reconnect(ctx context.Context, gen uint64) Conn {
	for {
		c.mu.Lock()
		d := c.bo.Next()
		f := c.filter
		c.mu.Unlock()
		c.metrics.IncStreamReconnect()
		debuglog.RateLimitedf("stream-reconnect", 10*time.Second, "stream reconnecting in %s filter=%s", d, f)
		if err := c.opts.Sleep(ctx, d); err != nil {
			return nil
		}
		conn, err := c.opts.Dialer.Dial(ctx, c.url(f), c.opts.Origin)
		if err != nil {
			continue
		}
		c.mu.Lock()
		if !c.desired || c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.connected = true
		c.bo.Reset()
		c.mu.Unlock()
		c.metrics.IncStreamConnect()
		return conn
	}
}

// handle processes one message. A panic here is contained to the message.
func (c *Client) handle(msg []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			c.metrics.IncStreamPanic()
			debuglog.Logf("stream handler panic: %v", rec)
		}
	}()
	u, err := proto.DecodeUpdate(msg)
	if err != nil {
		c.metrics.IncStreamDecodeError()
		debuglog.RateLimitedf("stream-decode", 10*time.Second, "stream decode failed (%d bytes): %v", len(msg), err)
		return
	}
	ev, ok := u.(*proto.Events)
	if !ok {
		return
	}
	if c.opts.OnTransaction != nil {
		for _, tx := range ev.Transactions() {
			c.opts.OnTransaction(tx.PublicHex(), tx.Nonce)
		}
	}
	for _, e := range ev.GameEvents() {
		c.metrics.IncStreamEvent()
		c.push(e)
		c.publish(e)
	}
}

func (c *Client) push(e proto.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := append(c.pending[e.TargetID()], e)
	if len(q) > c.opts.PendingCap {
		q = q[len(q)-c.opts.PendingCap:]
		c.metrics.IncStreamPendingDropped()
	}
	c.pending[e.TargetID()] = q
}

func (c *Client) publish(e proto.Event) {
	c.mu.Lock()
	subs := make([]func(proto.Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Subscribe registers fn for every event; the returned func removes it.
func (c *Client) Subscribe(fn func(proto.Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func matches(e proto.Event, target, kind string) bool {
	return e.TargetID() == target && (kind == "" || e.Kind() == kind)
}

// take removes and returns the oldest pending event for target of kind. An
// empty kind matches any kind.
func (c *Client) take(target, kind string) (proto.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.pending[target]
	for i, e := range q {
		if !matches(e, target, kind) {
			continue
		}
		q = append(q[:i:i], q[i+1:]...)
		if len(q) == 0 {
			delete(c.pending, target)
		} else {
			c.pending[target] = q
		}
		return e, true
	}
	return nil, false
}

// PendingLen is the number of queued events for target.
func (c *Client) PendingLen(target string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[target])
}

// WaitForEvent returns the next event for target of kind, consuming it. An
// event that arrived before the call is returned immediately.
func (c *Client) WaitForEvent(ctx context.Context, target, kind string, timeout time.Duration) (proto.Event, error) {
	if e, ok := c.take(target, kind); ok {
		return e, nil
	}
	signal := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(e proto.Event) {
		if matches(e, target, kind) {
			select {
			case signal <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()
	if e, ok := c.take(target, kind); ok {
		return e, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-signal:
			if e, ok := c.take(target, kind); ok {
				return e, nil
			}
		case <-timer.C:
			if e, ok := c.take(target, kind); ok {
				return e, nil
			}
			return nil, fmt.Errorf("%w: %s %s", ErrWaitTimeout, kind, target)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
