package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Rejection records one ledger rejection for the recent list.
type Rejection struct {
	At      time.Time `json:"at"`
	Account string    `json:"account"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Submit      SubmitMetrics     `json:"submit"`
	Forward     ForwardMetrics    `json:"forward"`
	Nonce       NonceMetrics      `json:"nonce"`
	Stream      StreamMetrics     `json:"stream"`
	Sessions    SessionMetrics    `json:"sessions"`
	DropByCode  map[string]uint64 `json:"drop_by_code"`
	Recent      []Rejection       `json:"recent"`
}

type SubmitMetrics struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Timeout  uint64 `json:"timeout"`
	TooLarge uint64 `json:"too_large"`
}

type ForwardMetrics struct {
	Retries      uint64 `json:"retries"`
	Deduplicated uint64 `json:"deduplicated"`
	InProgress   uint64 `json:"in_progress"`
	KeyReused    uint64 `json:"key_reused"`
}

type NonceMetrics struct {
	Rejections uint64 `json:"rejections"`
	Resyncs    uint64 `json:"resyncs"`
	Observed   uint64 `json:"observed"`
}

type StreamMetrics struct {
	Connects       uint64 `json:"connects"`
	Reconnects     uint64 `json:"reconnects"`
	Events         uint64 `json:"events"`
	DecodeErrors   uint64 `json:"decode_errors"`
	PendingDropped uint64 `json:"pending_dropped"`
	Panics         uint64 `json:"panics"`
}

type SessionMetrics struct {
	Created     uint64 `json:"created"`
	Destroyed   uint64 `json:"destroyed"`
	RateLimited uint64 `json:"rate_limited"`
	IdleSwept   uint64 `json:"idle_swept"`
	Active      int64  `json:"active"`
	Conns       int64  `json:"conns"`
}

// Metrics is a set of process counters. A nil *Metrics is valid and discards
// everything, so components can be built without one in tests.
type Metrics struct {
	submitAccepted atomic.Uint64
	submitRejected atomic.Uint64
	submitTimeout  atomic.Uint64
	submitTooLarge atomic.Uint64

	forwardRetries      atomic.Uint64
	forwardDeduplicated atomic.Uint64
	forwardInProgress   atomic.Uint64
	forwardKeyReused    atomic.Uint64

	nonceRejections atomic.Uint64
	nonceResyncs    atomic.Uint64
	nonceObserved   atomic.Uint64

	streamConnects       atomic.Uint64
	streamReconnects     atomic.Uint64
	streamEvents         atomic.Uint64
	streamDecodeErrors   atomic.Uint64
	streamPendingDropped atomic.Uint64
	streamPanics         atomic.Uint64

	sessionsCreated     atomic.Uint64
	sessionsDestroyed   atomic.Uint64
	sessionsRateLimited atomic.Uint64
	sessionsIdleSwept   atomic.Uint64
	sessionsActive      atomic.Int64
	conns               atomic.Int64

	dropMu     sync.Mutex
	dropByCode map[string]uint64

	recent *RecentRejections
}

func New() *Metrics {
	return &Metrics{
		dropByCode: make(map[string]uint64),
		recent:     NewRecentRejections(64),
	}
}

func inc(c *atomic.Uint64) {
	c.Add(1)
}

func (m *Metrics) IncSubmitAccepted() {
	if m != nil {
		inc(&m.submitAccepted)
	}
}

func (m *Metrics) IncSubmitTimeout() {
	if m != nil {
		inc(&m.submitTimeout)
	}
}

func (m *Metrics) IncSubmitTooLarge() {
	if m != nil {
		inc(&m.submitTooLarge)
	}
}

// RecordRejection counts a ledger rejection and keeps it in the recent list.
func (m *Metrics) RecordRejection(account, code, message string) {
	if m == nil {
		return
	}
	inc(&m.submitRejected)
	m.IncDropByCode(code)
	m.recent.Add(Rejection{At: time.Now().UTC(), Account: account, Code: code, Message: message})
}

func (m *Metrics) IncForwardRetry() {
	if m != nil {
		inc(&m.forwardRetries)
	}
}

func (m *Metrics) IncForwardDeduplicated() {
	if m != nil {
		inc(&m.forwardDeduplicated)
	}
}

func (m *Metrics) IncForwardInProgress() {
	if m != nil {
		inc(&m.forwardInProgress)
	}
}

func (m *Metrics) IncForwardKeyReused() {
	if m != nil {
		inc(&m.forwardKeyReused)
	}
}

func (m *Metrics) IncNonceRejection() {
	if m != nil {
		inc(&m.nonceRejections)
	}
}

func (m *Metrics) IncNonceResync() {
	if m != nil {
		inc(&m.nonceResyncs)
	}
}

func (m *Metrics) IncNonceObserved() {
	if m != nil {
		inc(&m.nonceObserved)
	}
}

func (m *Metrics) IncStreamConnect() {
	if m != nil {
		inc(&m.streamConnects)
	}
}

func (m *Metrics) IncStreamReconnect() {
	if m != nil {
		inc(&m.streamReconnects)
	}
}

func (m *Metrics) IncStreamEvent() {
	if m != nil {
		inc(&m.streamEvents)
	}
}

func (m *Metrics) IncStreamDecodeError() {
	if m != nil {
		inc(&m.streamDecodeErrors)
	}
}

func (m *Metrics) IncStreamPendingDropped() {
	if m != nil {
		inc(&m.streamPendingDropped)
	}
}

func (m *Metrics) IncStreamPanic() {
	if m != nil {
		inc(&m.streamPanics)
	}
}

func (m *Metrics) IncSessionCreated() {
	if m != nil {
		inc(&m.sessionsCreated)
		m.sessionsActive.Add(1)
	}
}

func (m *Metrics) IncSessionDestroyed() {
	if m != nil {
		inc(&m.sessionsDestroyed)
		m.sessionsActive.Add(-1)
	}
}

func (m *Metrics) IncSessionRateLimited() {
	if m != nil {
		inc(&m.sessionsRateLimited)
	}
}

func (m *Metrics) AddSessionsIdleSwept(n int) {
	if m != nil && n > 0 {
		m.sessionsIdleSwept.Add(uint64(n))
	}
}

func (m *Metrics) SetConns(n int64) {
	if m != nil {
		m.conns.Store(n)
	}
}

func (m *Metrics) IncDropByCode(code string) {
	if m == nil || code == "" {
		return
	}
	m.dropMu.Lock()
	m.dropByCode[code]++
	m.dropMu.Unlock()
}

func (m *Metrics) Recent() *RecentRejections {
	if m == nil {
		return nil
	}
	return m.recent
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{GeneratedAt: time.Now().UTC(), DropByCode: map[string]uint64{}, Recent: []Rejection{}}
	}
	recent := m.recent.List()
	if recent == nil {
		recent = []Rejection{}
	}
	m.dropMu.Lock()
	drops := make(map[string]uint64, len(m.dropByCode))
	for k, v := range m.dropByCode {
		drops[k] = v
	}
	m.dropMu.Unlock()
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Submit: SubmitMetrics{
			Accepted: m.submitAccepted.Load(),
			Rejected: m.submitRejected.Load(),
			Timeout:  m.submitTimeout.Load(),
			TooLarge: m.submitTooLarge.Load(),
		},
		Forward: ForwardMetrics{
			Retries:      m.forwardRetries.Load(),
			Deduplicated: m.forwardDeduplicated.Load(),
			InProgress:   m.forwardInProgress.Load(),
			KeyReused:    m.forwardKeyReused.Load(),
		},
		Nonce: NonceMetrics{
			Rejections: m.nonceRejections.Load(),
			Resyncs:    m.nonceResyncs.Load(),
			Observed:   m.nonceObserved.Load(),
		},
		Stream: StreamMetrics{
			Connects:       m.streamConnects.Load(),
			Reconnects:     m.streamReconnects.Load(),
			Events:         m.streamEvents.Load(),
			DecodeErrors:   m.streamDecodeErrors.Load(),
			PendingDropped: m.streamPendingDropped.Load(),
			Panics:         m.streamPanics.Load(),
		},
		Sessions: SessionMetrics{
			Created:     m.sessionsCreated.Load(),
			Destroyed:   m.sessionsDestroyed.Load(),
			RateLimited: m.sessionsRateLimited.Load(),
			IdleSwept:   m.sessionsIdleSwept.Load(),
			Active:      m.sessionsActive.Load(),
			Conns:       m.conns.Load(),
		},
		DropByCode: drops,
		Recent:     recent,
	}
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	snap := m.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// RecentRejections is a fixed-capacity list; the oldest entry is evicted.
type RecentRejections struct {
	mu   sync.Mutex
	cap  int
	list []Rejection
}

func NewRecentRejections(capacity int) *RecentRejections {
	if capacity <= 0 {
		capacity = 64
	}
	return &RecentRejections{cap: capacity}
}

func (r *RecentRejections) Add(rej Rejection) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) >= r.cap {
		copy(r.list, r.list[1:])
		r.list[len(r.list)-1] = rej
		return
	}
	r.list = append(r.list, rej)
}

func (r *RecentRejections) List() []Rejection {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Rejection, len(r.list))
	copy(out, r.list)
	return out
}
