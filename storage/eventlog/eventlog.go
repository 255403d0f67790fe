package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"bountyexchange/core/events"
	"bountyexchange/core/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	// maxBacklog bounds events held in memory while appends are failing.
	maxBacklog = 4096
)

// Record is one committed event with its position in the log.
type Record struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	// After returns only records with a larger sequence.
	After int64
	Type  string
	// RequestID matches the hex id attribute of bounty events.
	RequestID string
	Limit     int
}

// Log persists committed events to SQLite so clients can page through history
// after a restart.
type Log struct {
	db       *sql.DB
	logger   *slog.Logger
	nowFn    func() time.Time
	onAppend func(Record)

	// backlog holds rendered events whose append failed, oldest first.
	backlogMu sync.Mutex
	backlog   []*types.Event
}

// Open creates or opens the log at path. ":memory:" keeps the log in process.
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps in-memory logs shared.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{db: db, logger: logger, nowFn: time.Now}
	if err := l.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            request_id TEXT,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_request_id ON events(request_id);`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventlog schema: %w", err)
		}
	}
	return nil
}

// OnAppend registers fn to receive every record after it is stored. Call it
// before the log is shared.
func (l *Log) OnAppend(fn func(Record)) {
	l.onAppend = fn
}

// Close makes a last attempt to persist queued events before closing.
func (l *Log) Close() error {
	if err := l.Flush(context.Background()); err != nil {
		l.logger.Warn("closing event log with undelivered events", slog.Int("backlog", l.Backlog()))
	}
	return l.db.Close()
}

// Append stores evt and returns the stored record.
func (l *Log) Append(ctx context.Context, evt *types.Event) (Record, error) {
	if evt == nil {
		return Record{}, fmt.Errorf("eventlog: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return Record{}, err
	}
	created := l.nowFn().UTC()
	const stmt = `INSERT INTO events(type, request_id, payload, created_at) VALUES (?, ?, ?, ?)`
	res, err := l.db.ExecContext(ctx, stmt, evt.Type, nullString(attrs["id"]), string(payload), created)
	if err != nil {
		return Record{}, fmt.Errorf("eventlog append: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}
	rec := Record{Sequence: seq, Type: evt.Type, Attributes: attrs, CreatedAt: created}
	if l.onAppend != nil {
		l.onAppend(rec)
	}
	return rec, nil
}

// Emit implements events.Emitter. Emitters have no error path, so an event
// whose append fails stays queued and is retried ahead of the next event to
// keep sequence order matching commit order.
func (l *Log) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if rendered == nil {
		return
	}
	l.backlogMu.Lock()
	defer l.backlogMu.Unlock()
	if len(l.backlog) >= maxBacklog {
		dropped := l.backlog[0]
		l.backlog = l.backlog[1:]
		l.logger.Error("event backlog full, dropping oldest event",
			slog.String("type", dropped.Type),
			slog.Int("backlog", len(l.backlog)))
	}
	l.backlog = append(l.backlog, rendered)
	l.drainLocked(context.Background())
}

// Flush retries queued events and returns the first append error, if any.
func (l *Log) Flush(ctx context.Context) error {
	l.backlogMu.Lock()
	defer l.backlogMu.Unlock()
	return l.drainLocked(ctx)
}

// Backlog reports how many events are waiting to be persisted.
func (l *Log) Backlog() int {
	l.backlogMu.Lock()
	defer l.backlogMu.Unlock()
	return len(l.backlog)
}

func (l *Log) drainLocked(ctx context.Context) error {
	for len(l.backlog) > 0 {
		next := l.backlog[0]
		if _, err := l.Append(ctx, next); err != nil {
			l.logger.Error("persist event failed",
				slog.String("type", next.Type),
				slog.Int("backlog", len(l.backlog)),
				slog.Any("error", err))
			return err
		}
		l.backlog[0] = nil
		l.backlog = l.backlog[1:]
	}
	return nil
}

// List returns records matching filter in sequence order.
func (l *Log) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	clauses := []string{"sequence > ?"}
	args := []interface{}{filter.After}
	if t := strings.TrimSpace(filter.Type); t != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, t)
	}
	if id := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(filter.RequestID), "0x")); id != "" {
		clauses = append(clauses, "request_id = ?")
		args = append(args, id)
	}
	args = append(args, limit)
	query := `SELECT sequence, type, payload, created_at FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY sequence ASC LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload string
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode payload %d: %w", rec.Sequence, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastSequence returns the sequence of the newest record, or zero.
func (l *Log) LastSequence(ctx context.Context) (int64, error) {
	row := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
