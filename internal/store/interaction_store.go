// Package store implements the Interaction Store (append-only interaction
// log with bulk scan / per-user filter) and the Event Feature Store
// (structured per-event features plus semantic vector).
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

// InteractionStore appends interaction tuples to Postgres through a
// bounded write queue drained by a background worker, so ingestion never
// blocks on database latency. On queue overflow the oldest buffered event
// is dropped and an error counter is incremented; the ingest path
// never blocks.
type InteractionStore struct {
	pg     *pgxpool.Pool
	logger *logrus.Logger

	writeQueue chan models.Interaction
	stopChan   chan struct{}
	wg         sync.WaitGroup

	mu        sync.Mutex
	dropCount int64
}

func NewInteractionStore(pg *pgxpool.Pool, logger *logrus.Logger) *InteractionStore {
	s := &InteractionStore{
		pg:         pg,
		logger:     logger,
		writeQueue: make(chan models.Interaction, 10000),
		stopChan:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeWorker()
	return s
}

func (s *InteractionStore) writeWorker() {
	defer s.wg.Done()
	for {
		select {
		case in := <-s.writeQueue:
			var err error
			for attempt := 0; attempt < 3; attempt++ {
				if attempt > 0 {
					time.Sleep(time.Duration(100<<attempt) * time.Millisecond)
				}
				if err = s.persist(context.Background(), in); err == nil {
					break
				}
			}
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":  in.UserID,
					"event_id": in.EventID,
				}).Warn("interaction store: transient write failure after retries, dropping event")
			}
		case <-s.stopChan:
			return
		}
	}
}

func (s *InteractionStore) persist(ctx context.Context, in models.Interaction) error {
	var metadata []byte
	if in.Metadata != nil {
		m, err := json.Marshal(in.Metadata)
		if err != nil {
			return errs.New(errs.Transient, err)
		}
		metadata = m
	}

	_, err := s.pg.Exec(ctx, `
		INSERT INTO interactions (user_id, event_id, type, rating, duration_seconds, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.UserID, in.EventID, string(in.Type), in.Rating, in.DurationSeconds, in.Timestamp, metadata,
	)
	if err != nil {
		return errs.New(errs.Transient, err)
	}
	return nil
}

// Record enqueues an interaction for durable append. Never blocks: on a
// full queue the oldest pending write is dropped in favor of the new one.
// A malformed interaction is rejected outright at this boundary (no
// partial work, never enqueued). That is distinct from a Transient
// persistence failure, which is retried or dropped further downstream
// in the write worker.
func (s *InteractionStore) Record(in models.Interaction) {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	if err := in.Validate(); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  in.UserID,
			"event_id": in.EventID,
		}).Warn("interaction store: rejecting invalid interaction at the boundary")
		return
	}

	select {
	case s.writeQueue <- in:
	default:
		select {
		case <-s.writeQueue:
			s.mu.Lock()
			s.dropCount++
			s.mu.Unlock()
		default:
		}
		select {
		case s.writeQueue <- in:
		default:
		}
	}
}

// DropCount reports how many buffered writes have been evicted for
// backpressure so far.
func (s *InteractionStore) DropCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropCount
}

// BulkScan returns the full interaction history, used by CF/CB training.
func (s *InteractionStore) BulkScan(ctx context.Context) ([]models.Interaction, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT user_id, event_id, type, rating, duration_seconds, timestamp
		FROM interactions ORDER BY timestamp ASC`)
	if err != nil {
		return nil, errs.New(errs.Transient, err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// FilterByUser returns one user's interaction history, used at inference
// time to mask already-seen events and build CB profiles.
func (s *InteractionStore) FilterByUser(ctx context.Context, userID string) ([]models.Interaction, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT user_id, event_id, type, rating, duration_seconds, timestamp
		FROM interactions WHERE user_id = $1 ORDER BY timestamp ASC`, userID)
	if err != nil {
		return nil, errs.New(errs.Transient, err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func scanInteractions(rows pgx.Rows) ([]models.Interaction, error) {
	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var typ string
		if err := rows.Scan(&in.UserID, &in.EventID, &typ, &in.Rating, &in.DurationSeconds, &in.Timestamp); err != nil {
			return nil, errs.New(errs.Transient, err)
		}
		in.Type = models.InteractionType(typ)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.Transient, err)
	}
	return out, nil
}

// Stop shuts down the background write worker. Interactions still waiting
// in the queue are not written.
func (s *InteractionStore) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

