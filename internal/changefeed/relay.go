package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
	"github.com/nerrad567/dealer-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dealer-core/internal/store"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 100

// ErrPublish wraps a broker failure that stopped a flush.
var ErrPublish = errors.New("changefeed: publish failed")

// Source is the part of store.Store the relay reads from.
type Source interface {
	PendingChanges(ctx context.Context, limit int) ([]store.Change, error)
	MarkChangesSynced(ctx context.Context, ids []int64, at time.Time) (int64, error)
}

// Publisher sends one message. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Message is the JSON payload of one change.
type Message struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Operation  string    `json:"operation"`
	TenantID   string    `json:"tenant_id,omitempty"`
	At         time.Time `json:"at"`
}

func newMessage(c store.Change) Message {
	return Message{
		ID:         c.ID,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Operation:  c.Operation,
		TenantID:   c.TenantID,
		At:         c.CreatedAt,
	}
}

// Options configures a Relay.
type Options struct {
	Topics    mqtt.Topics
	QoS       byte
	BatchSize int
	Logger    *logging.Logger

	// Now replaces time.Now for the synced_at stamp.
	Now func() time.Time
}

// Relay moves changes from the sync log to the broker.
type Relay struct {
	source    Source
	publisher Publisher
	topics    mqtt.Topics
	qos       byte
	batchSize int
	logger    *logging.Logger
	now       func() time.Time
}

// NewRelay builds a Relay.
func NewRelay(source Source, publisher Publisher, opts Options) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		topics:    opts.Topics,
		qos:       opts.QoS,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.logger = r.logger.With("component", "changefeed")
	return r
}

// Flush publishes one batch of pending changes and marks the published
// ones synced. It returns how many were published.
//
// Publishing stops at the first failure so changes leave in order; the
// changes before the failure are still marked and the rest are retried
// on the next flush.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	changes, err := r.source.PendingChanges(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reading pending changes: %w", err)
	}
	if len(changes) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(changes))
	var pubErr error
	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			pubErr = err
			break
		}
		if err := r.publish(c); err != nil {
			pubErr = fmt.Errorf("%w: change %d: %w", ErrPublish, c.ID, err)
			break
		}
		published = append(published, c.ID)
	}

	if len(published) > 0 {
		// Mark even if ctx was cancelled mid-batch; those messages are out.
		if _, err := r.source.MarkChangesSynced(context.WithoutCancel(ctx), published, r.now()); err != nil {
			return len(published), errors.Join(pubErr, fmt.Errorf("marking changes synced: %w", err))
		}
	}

	return len(published), pubErr
}

func (r *Relay) publish(c store.Change) error {
	payload, err := json.Marshal(newMessage(c))
	if err != nil {
		return err
	}
	return r.publisher.Publish(r.topics.Change(c.TenantID, c.EntityType), payload, r.qos, false)
}

// Drain flushes until the log is empty or a flush fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.Flush(ctx)
		total += n
		if err != nil || n < r.batchSize {
			return total, err
		}
	}
}

// Run drains the log every interval until ctx is cancelled. Failures are
// logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.drainAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainAndLog(ctx)
		}
	}
}

func (r *Relay) drainAndLog(ctx context.Context) {
	n, err := r.Drain(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		// Shutting down.
	case err != nil:
		r.logger.Warn("change feed flush failed", "published", n, "error", err)
	case n > 0:
		r.logger.Debug("change feed flushed", "published", n)
	}
}
