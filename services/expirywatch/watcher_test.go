package expirywatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"bountyexchange/core"
	"bountyexchange/native/bounty"
)

type stubSource struct {
	mu   sync.Mutex
	open []core.OpenRequest
	now  int64
	err  error
}

func (s *stubSource) OpenRequests() ([]core.OpenRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, s.err
}

func (s *stubSource) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

type stubRecorder struct {
	mu    sync.Mutex
	scans []int
}

func (r *stubRecorder) RecordScan(_, reclaimable int, _ time.Duration) {
	r.mu.Lock()
	r.scans = append(r.scans, reclaimable)
	r.mu.Unlock()
}

func (r *stubRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scans)
}

func openAt(id byte, deadline int64) core.OpenRequest {
	return core.OpenRequest{
		Variant: core.VariantRegistry,
		Request: &bounty.BountyRequest{ID: [32]byte{id}, Deadline: deadline, Status: bounty.StatusOpen},
	}
}

func TestScanReportsDeadlineBoundaryAsReclaimable(t *testing.T) {
	source := &stubSource{
		now:  1_000,
		open: []core.OpenRequest{openAt(1, 900), openAt(2, 1_000), openAt(3, 1_001)},
	}
	recorder := &stubRecorder{}
	w := New(source, recorder, nil, time.Second)

	got := w.Scan()
	if len(got) != 2 {
		t.Fatalf("expected 2 reclaimable requests, got %d", len(got))
	}
	if got[0].ID != [32]byte{1} || got[0].Overdue != 100 {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].ID != [32]byte{2} || got[1].Overdue != 0 {
		t.Fatalf("deadline equal to now must be reclaimable: %+v", got[1])
	}
	if len(recorder.scans) != 1 || recorder.scans[0] != 2 {
		t.Fatalf("unexpected recorded scans: %v", recorder.scans)
	}
}

func TestScanSourceErrorRecordsNothing(t *testing.T) {
	source := &stubSource{err: errors.New("boom")}
	recorder := &stubRecorder{}
	w := New(source, recorder, nil, time.Second)
	if got := w.Scan(); got != nil {
		t.Fatalf("expected nil result, got %v", got)
	}
	if recorder.count() != 0 {
		t.Fatalf("failed scans must not be recorded")
	}
}

func TestRunScansUntilCancelled(t *testing.T) {
	source := &stubSource{now: 10, open: []core.OpenRequest{openAt(1, 5)}}
	recorder := &stubRecorder{}
	w := New(source, recorder, nil, 5*time.Millisecond)

	scanned := make(chan []Reclaimable, 16)
	w.OnScan(func(r []Reclaimable) {
		select {
		case scanned <- r:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case r := <-scanned:
			if len(r) != 1 {
				t.Fatalf("expected one reclaimable request, got %d", len(r))
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("watcher did not scan")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop after cancel")
	}
}

func reclaimableLogLevels(t *testing.T, buf *bytes.Buffer) map[string][]string {
	t.Helper()
	levels := make(map[string][]string)
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line struct {
			Level string `json:"level"`
			Msg   string `json:"msg"`
			ID    string `json:"id"`
		}
		if err := dec.Decode(&line); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if line.Msg == "bounty request reclaimable" {
			levels[line.ID] = append(levels[line.ID], line.Level)
		}
	}
	buf.Reset()
	return levels
}

func TestScanLogsNewlyOverdueRequestsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	source := &stubSource{now: 1_000, open: []core.OpenRequest{openAt(1, 900)}}
	w := New(source, nil, logger, time.Second)
	first := hex.EncodeToString([]byte{1}) + strings.Repeat("00", 31)
	second := hex.EncodeToString([]byte{2}) + strings.Repeat("00", 31)

	w.Scan()
	if got := reclaimableLogLevels(t, &buf); len(got[first]) != 1 || got[first][0] != "INFO" {
		t.Fatalf("first scan should log at INFO, got %v", got)
	}

	w.Scan()
	if got := reclaimableLogLevels(t, &buf); len(got[first]) != 1 || got[first][0] != "DEBUG" {
		t.Fatalf("repeat scan should log at DEBUG, got %v", got)
	}

	source.mu.Lock()
	source.open = []core.OpenRequest{openAt(2, 950)}
	source.mu.Unlock()
	w.Scan()
	got := reclaimableLogLevels(t, &buf)
	if len(got[first]) != 0 {
		t.Fatalf("reclaimed request should not be logged, got %v", got[first])
	}
	if len(got[second]) != 1 || got[second][0] != "INFO" {
		t.Fatalf("newly overdue request should log at INFO, got %v", got)
	}

	source.mu.Lock()
	source.open = []core.OpenRequest{openAt(1, 900), openAt(2, 950)}
	source.mu.Unlock()
	w.Scan()
	got = reclaimableLogLevels(t, &buf)
	if len(got[first]) != 1 || got[first][0] != "INFO" || len(got[second]) != 1 || got[second][0] != "DEBUG" {
		t.Fatalf("unexpected levels after reappearance: %v", got)
	}
}
