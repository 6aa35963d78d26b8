package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// EventStorage handles raw event persistence.
type EventStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewEventStorage creates an event store over an open database.
func NewEventStorage(db *SQLite, logger *zap.SugaredLogger) *EventStorage {
	return &EventStorage{db: db, logger: logger}
}

// InsertEvents writes a batch of events in one transaction.
func (es *EventStorage) InsertEvents(ctx context.Context, events []*core.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := es.db.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, source, event_type, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, merr := json.Marshal(ev.Payload)
		if merr != nil {
			payload = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, string(ev.Source),
			string(ev.EventType), string(payload), ev.Timestamp.UTC()); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// GetRecentEvents lists the most recent events, newest first.
func (es *EventStorage) GetRecentEvents(ctx context.Context, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := es.db.ReadDB.QueryContext(ctx, `
		SELECT id, source, event_type, payload, timestamp
		FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		var (
			ev      core.Event
			source  string
			etype   string
			payload string
		)
		if err := rows.Scan(&ev.ID, &source, &etype, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Source = core.EventSource(source)
		ev.EventType = core.EventType(etype)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			ev.Payload = map[string]interface{}{}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneEventsBefore deletes events older than the cutoff.
func (es *EventStorage) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := es.db.WriteDB.ExecContext(ctx,
		`DELETE FROM events WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// EventWriter batches raw events off the hot path. The detector enqueues
// without blocking; a background goroutine flushes on a size threshold or a
// ticker, whichever comes first. Store failures are logged and the batch
// dropped: raw-event history is best-effort, alerts are the durable record.
type EventWriter struct {
	store   *EventStorage
	ch      chan *core.Event
	flushAt int
	period  time.Duration
	logger  *zap.SugaredLogger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEventWriter creates a writer flushing every flushAt events or period.
func NewEventWriter(store *EventStorage, buffer, flushAt int, period time.Duration, logger *zap.SugaredLogger) *EventWriter {
	if buffer <= 0 {
		buffer = 1000
	}
	if flushAt <= 0 {
		flushAt = 64
	}
	if period <= 0 {
		period = 2 * time.Second
	}
	return &EventWriter{
		store:   store,
		ch:      make(chan *core.Event, buffer),
		flushAt: flushAt,
		period:  period,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Enqueue hands an event to the writer without blocking; under backlog the
// event is dropped.
func (w *EventWriter) Enqueue(event *core.Event) {
	select {
	case w.ch <- event:
	default:
		w.logger.Debugw("Event writer backlog, dropping event", "event_id", event.ID)
	}
}

// Start launches the flush goroutine.
func (w *EventWriter) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *EventWriter) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	batch := make([]*core.Event, 0, w.flushAt)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.InsertEvents(ctx, batch); err != nil {
			w.logger.Warnw("Failed to flush event batch", "count", len(batch), "error", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-w.ch:
			batch = append(batch, ev)
			if len(batch) >= w.flushAt {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stopCh:
			for {
				select {
				case ev := <-w.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Stop flushes pending events and stops the writer.
func (w *EventWriter) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}
