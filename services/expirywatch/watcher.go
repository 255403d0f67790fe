package expirywatch

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"bountyexchange/core"
)

const defaultPollInterval = 30 * time.Second

// Source lists the requests currently holding a locked asset.
type Source interface {
	OpenRequests() ([]core.OpenRequest, error)
	Now() int64
}

// Recorder receives the outcome of every scan.
type Recorder interface {
	RecordScan(open, reclaimable int, d time.Duration)
}

// Reclaimable is an open request whose deadline has passed.
type Reclaimable struct {
	Variant   core.Variant
	ID        [32]byte
	Requester [20]byte
	Deadline  int64
	// Overdue is how many seconds the deadline lies in the past.
	Overdue int64
}

// Watcher periodically reports open requests that the requester may reclaim.
// It never changes state: reclaiming stays an explicit requester action.
type Watcher struct {
	source       Source
	recorder     Recorder
	logger       *slog.Logger
	pollInterval time.Duration
	clockFn      func() time.Time
	onScan       func([]Reclaimable)

	mu       sync.Mutex
	reported map[requestKey]struct{}
}

type requestKey struct {
	variant core.Variant
	id      [32]byte
}

// New constructs a watcher polling source every interval.
func New(source Source, recorder Recorder, logger *slog.Logger, interval time.Duration) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		source:       source,
		recorder:     recorder,
		logger:       logger.With(slog.String("component", "expirywatch")),
		pollInterval: interval,
		clockFn:      time.Now,
		reported:     make(map[requestKey]struct{}),
	}
}

// OnScan registers a callback invoked with the result of each scan.
func (w *Watcher) OnScan(fn func([]Reclaimable)) {
	w.onScan = fn
}

// Run scans once immediately and then on every tick until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.source == nil {
		return
	}
	w.Scan()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan returns every open request at or past its deadline, oldest first.
func (w *Watcher) Scan() []Reclaimable {
	started := w.clockFn()
	open, err := w.source.OpenRequests()
	if err != nil {
		w.logger.Error("expiry scan failed", slog.Any("error", err))
		return nil
	}
	now := w.source.Now()
	var out []Reclaimable
	for _, entry := range open {
		req := entry.Request
		if req == nil || now < req.Deadline {
			continue
		}
		out = append(out, Reclaimable{
			Variant:   entry.Variant,
			ID:        req.ID,
			Requester: req.Requester,
			Deadline:  req.Deadline,
			Overdue:   now - req.Deadline,
		})
	}
	elapsed := w.clockFn().Sub(started)
	if w.recorder != nil {
		w.recorder.RecordScan(len(open), len(out), elapsed)
	}
	w.logReclaimable(out)
	w.logger.Debug("expiry scan complete",
		slog.Int("open", len(open)),
		slog.Int("reclaimable", len(out)),
		slog.Duration("elapsed", elapsed))
	if w.onScan != nil {
		w.onScan(out)
	}
	return out
}

// logReclaimable reports a request at Info the first scan it is seen overdue
// and at Debug afterwards. Requests no longer overdue are forgotten.
func (w *Watcher) logReclaimable(out []Reclaimable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[requestKey]struct{}, len(out))
	for _, r := range out {
		key := requestKey{variant: r.Variant, id: r.ID}
		seen[key] = struct{}{}
		level := slog.LevelInfo
		if _, ok := w.reported[key]; ok {
			level = slog.LevelDebug
		}
		w.logger.LogAttrs(context.Background(), level, "bounty request reclaimable",
			slog.String("variant", string(r.Variant)),
			slog.String("id", hex.EncodeToString(r.ID[:])),
			slog.Int64("deadline", r.Deadline),
			slog.Int64("overdueSeconds", r.Overdue))
	}
	w.reported = seen
}
