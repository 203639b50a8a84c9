package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.IncSubmitAccepted()
	m.IncSubmitAccepted()
	m.IncSubmitTimeout()
	m.RecordRejection("aa", "NONCE_CONFLICT", "nonce too low")
	m.IncForwardRetry()
	m.IncForwardDeduplicated()
	m.IncNonceResync()
	m.IncStreamReconnect()
	m.IncStreamDecodeError()
	m.IncSessionCreated()
	m.IncSessionCreated()
	m.IncSessionDestroyed()
	m.AddSessionsIdleSwept(3)
	m.SetConns(4)
	snap := m.Snapshot()
	if snap.Submit.Accepted != 2 || snap.Submit.Timeout != 1 || snap.Submit.Rejected != 1 {
		t.Fatalf("unexpected submit counts: %+v", snap.Submit)
	}
	if snap.Forward.Retries != 1 || snap.Forward.Deduplicated != 1 {
		t.Fatalf("unexpected forward counts: %+v", snap.Forward)
	}
	if snap.Nonce.Resyncs != 1 || snap.Stream.Reconnects != 1 || snap.Stream.DecodeErrors != 1 {
		t.Fatalf("unexpected nonce/stream counts: %+v %+v", snap.Nonce, snap.Stream)
	}
	if snap.Sessions.Active != 1 || snap.Sessions.IdleSwept != 3 || snap.Sessions.Conns != 4 {
		t.Fatalf("unexpected session counts: %+v", snap.Sessions)
	}
	if snap.DropByCode["NONCE_CONFLICT"] != 1 {
		t.Fatalf("expected drop_by_code NONCE_CONFLICT=1, got %d", snap.DropByCode["NONCE_CONFLICT"])
	}
	if len(snap.Recent) != 1 || snap.Recent[0].Message != "nonce too low" {
		t.Fatalf("unexpected recent list: %+v", snap.Recent)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncSubmitAccepted()
	m.RecordRejection("aa", "REJECTED", "x")
	m.SetConns(1)
	snap := m.Snapshot()
	if snap.Submit.Accepted != 0 || snap.DropByCode == nil {
		t.Fatalf("unexpected nil snapshot: %+v", snap)
	}
}

func TestRecentRejectionsEvictsOldest(t *testing.T) {
	r := NewRecentRejections(2)
	r.Add(Rejection{Code: "a"})
	r.Add(Rejection{Code: "b"})
	r.Add(Rejection{Code: "c"})
	list := r.List()
	if len(list) != 2 || list[0].Code != "b" || list[1].Code != "c" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestWriteSnapshot(t *testing.T) {
	m := New()
	m.IncStreamConnect()
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Stream.Connects != 1 {
		t.Fatalf("expected connects=1, got %d", snap.Stream.Connects)
	}
	if err := m.WriteSnapshot(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
