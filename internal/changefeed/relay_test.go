package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
	"github.com/nerrad567/dealer-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/dealer-core/internal/store"
	"github.com/nerrad567/dealer-core/migrations"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakePublisher records messages and fails from the failAt-th call on
// (1-based) when failAt is set.
type fakePublisher struct {
	mu     sync.Mutex
	msgs   []published
	calls  int
	failAt int
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls >= p.failAt {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, published{topic, payload, qos, retained})
	return nil
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "dealer.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, migrations.All()))
	s, err := store.New(ctx, db, store.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return s
}

func seedSettings(t *testing.T, s *store.Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, s.SetSetting(context.Background(), k, "v"))
	}
}

var syncedAt = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newTestRelay(s *store.Store, pub Publisher, batch int) *Relay {
	return NewRelay(s, pub, Options{
		Topics:    mqtt.Topics{Prefix: "lot42"},
		QoS:       1,
		BatchSize: batch,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return syncedAt },
	})
}

func TestFlushPublishesInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateClient(ctx, "user-1", store.Client{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	seedSettings(t, s, "theme")

	pub := &fakePublisher{}
	n, err := newTestRelay(s, pub, 10).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "lot42/changes/user-1/client", msgs[0].topic)
	assert.Equal(t, "lot42/changes/shared/setting", msgs[1].topic)
	for _, m := range msgs {
		assert.Equal(t, byte(1), m.qos)
		assert.False(t, m.retained)
	}

	var first Message
	require.NoError(t, json.Unmarshal(msgs[0].payload, &first))
	assert.Equal(t, store.EntityClient, first.EntityType)
	assert.Equal(t, c.ID, first.EntityID)
	assert.Equal(t, store.OpCreate, first.Operation)
	assert.Equal(t, "user-1", first.TenantID)

	var second map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].payload, &second))
	assert.NotContains(t, second, "tenant_id", "shared changes carry no tenant")

	pending, err := s.PendingChanges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushEmpty(t *testing.T) {
	s := newTestStore(t)
	pub := &fakePublisher{}

	n, err := newTestRelay(s, pub, 10).Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, pub.calls)
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSettings(t, s, "a", "b", "c", "d")

	pub := &fakePublisher{failAt: 3}
	n, err := newTestRelay(s, pub, 10).Flush(ctx)
	assert.ErrorIs(t, err, ErrPublish)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, pub.calls, "nothing is published after a failure")

	pending, err := s.PendingChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].EntityID)
	assert.Equal(t, "d", pending[1].EntityID)

	// Broker back: the rest goes out in order.
	pub.failAt = 0
	n, err = newTestRelay(s, pub, 10).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var ids []string
	for _, m := range pub.messages() {
		var msg Message
		require.NoError(t, json.Unmarshal(m.payload, &msg))
		ids = append(ids, msg.EntityID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestDrainInBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSettings(t, s, "a", "b", "c", "d", "e")

	pub := &fakePublisher{}
	n, err := newTestRelay(s, pub, 2).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, pub.messages(), 5)

	pending, err := s.PendingChanges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushCancelled(t *testing.T) {
	s := newTestStore(t)
	seedSettings(t, s, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &fakePublisher{}
	_, err := newTestRelay(s, pub, 10).Flush(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pub.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	seedSettings(t, s, "a", "b")

	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		newTestRelay(s, pub, 10).Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRelayDefaults(t *testing.T) {
	r := NewRelay(nil, nil, Options{})
	assert.Equal(t, DefaultBatchSize, r.batchSize)
	assert.NotNil(t, r.logger)
	assert.NotNil(t, r.now)
}
