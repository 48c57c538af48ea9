package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Relay polls an outbox table and hands unpublished messages to a Dispatcher.
// Several relays may run against the same table; claims use SKIP LOCKED.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	m          *metrics
	tableLabel string
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}

	opts.setDefaults()

	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		tableLabel: TableLabel(table),
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.opts.Logger.WithField("table", r.tableLabel).Info("outbox: relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := r.observeQueueDepth(ctx); err != nil {
			r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
		}
		if err := r.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

type claimed struct {
	ID          uuid.UUID
	Topic       string
	Payload     []byte
	EventID     uuid.UUID
	AggregateID uuid.UUID
	Sequence    int64
	Attempts    int
}

// ProcessOnce claims one batch and dispatches it. Exposed for the CLI and tests.
func (r *Relay) ProcessOnce(ctx context.Context) error {
	now := time.Now()
	items, err := r.claim(ctx, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return err
	}

	for _, c := range items {
		dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
		start := time.Now()
		err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
			Meta: Meta{
				Table:       r.table,
				Topic:       c.Topic,
				EventID:     c.EventID,
				AggregateID: c.AggregateID,
				Sequence:    c.Sequence,
				Attempts:    c.Attempts,
			},
			Payload: c.Payload,
		})
		cancel()

		latency := time.Since(start)
		if err == nil {
			r.recordDispatch(c.Topic, "success", latency)
			if ackErr := r.exec(ctx, "ack",
				`UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL WHERE id = $1 AND published_at IS NULL`,
				c.ID,
			); ackErr != nil {
				r.logFor(c).WithError(ackErr).Warn("outbox: ack failed")
			}
			continue
		}

		r.recordDispatch(c.Topic, "failure", latency)
		lastErr := truncateError(err, r.opts.LastErrorMaxLen)

		if c.Attempts >= r.opts.MaxAttempts {
			r.m.deadTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
			r.logFor(c).WithError(err).Error("outbox: message exhausted attempts")
			if deadErr := r.exec(ctx, "dead",
				`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = now() WHERE id = $1 AND published_at IS NULL`,
				c.ID, lastErr,
			); deadErr != nil {
				r.logFor(c).WithError(deadErr).Warn("outbox: dead update failed")
			}
			continue
		}

		next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		if nackErr := r.exec(ctx, "nack",
			`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3 WHERE id = $1 AND published_at IS NULL`,
			c.ID, lastErr, next,
		); nackErr != nil {
			r.logFor(c).WithError(nackErr).Warn("outbox: nack failed")
		}
	}

	return nil
}

func (r *Relay) claim(ctx context.Context, now, lockCutoff time.Time) ([]claimed, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tableName := r.table.Sanitize()
	q := fmt.Sprintf(
		`SELECT id, topic, payload, event_id, aggregate_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		tableName,
	)
	rows, err := tx.Query(ctx, q, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}

	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.Topic, &c.Payload, &c.EventID, &c.AggregateID, &c.Sequence, &c.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, tableName)
	if _, err := tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, fmt.Errorf("outbox claim update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Relay) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(query, r.table.Sanitize()), args...); err != nil {
		return fmt.Errorf("outbox %s: %w", op, err)
	}
	return nil
}

func (r *Relay) observeQueueDepth(ctx context.Context) error {
	var pending int64
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE published_at IS NULL`, r.table.Sanitize())
	if err := r.pool.QueryRow(ctx, q).Scan(&pending); err != nil {
		return fmt.Errorf("outbox pending count: %w", err)
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	return nil
}

func (r *Relay) recordDispatch(topic, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, topic, result).Observe(latency.Seconds())
}

func (r *Relay) logFor(c claimed) *logrus.Entry {
	return r.opts.Logger.WithFields(logrus.Fields{
		"table":        r.tableLabel,
		"topic":        c.Topic,
		"event_id":     c.EventID.String(),
		"aggregate_id": c.AggregateID.String(),
		"sequence":     c.Sequence,
		"attempts":     c.Attempts,
	})
}
