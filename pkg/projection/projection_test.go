package projection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	essql "github.com/plaenen/iamcore/pkg/eventstore/sql"
	"github.com/plaenen/iamcore/pkg/projection"
)

func newTestEnv(t *testing.T) (*eventstore.Eventstore, *database.DB) {
	t.Helper()
	db, err := database.Connect(":memory:", database.WithWALMode(false))
	require.NoError(t, err)

	storage, err := essql.NewStorage(db)
	require.NoError(t, err)

	es := eventstore.NewEventstore(storage)
	t.Cleanup(func() { es.Close() })
	return es, db
}

// countingHandler projects org.added events into a single counter table and
// can be told to fail, for failure-budget tests.
type countingHandler struct {
	name    string
	failOn  string
	reduced []string
}

func (h *countingHandler) Name() string             { return h.name }
func (h *countingHandler) AggregateTypes() []string { return []string{"org"} }

func (h *countingHandler) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + h.name + `_rows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
	}
}

func (h *countingHandler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	if h.failOn != "" && event.AggregateID == h.failOn {
		return nil, errors.New("poison event")
	}
	h.reduced = append(h.reduced, event.AggregateID)
	if event.EventType != "org.added" {
		return nil, nil
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return []projection.Statement{{
		SQL:  `INSERT INTO ` + h.name + `_rows (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		Args: []any{event.AggregateID, payload.Name},
	}}, nil
}

func pushOrg(t *testing.T, es *eventstore.Eventstore, orgID, name string) {
	t.Helper()
	_, err := es.Push(context.Background(), &domain.Command{
		InstanceID:    "inst-1",
		Owner:         orgID,
		AggregateType: "org",
		AggregateID:   orgID,
		EventType:     "org.added",
		Revision:      1,
		Payload:       map[string]any{"name": name},
		Creator:       "tester",
	})
	require.NoError(t, err)
}

func rowCount(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("CatchUpDrainsToTip", func(t *testing.T) {
		es, db := newTestEnv(t)
		registry, err := projection.NewRegistry(es, db, nil, projection.WithBatchSize(2))
		require.NoError(t, err)

		handler := &countingHandler{name: "p_catchup"}
		require.NoError(t, registry.Register(ctx, handler))

		for _, org := range []string{"org-1", "org-2", "org-3", "org-4", "org-5"} {
			pushOrg(t, es, org, "name of "+org)
		}

		require.NoError(t, registry.CatchUp(ctx, "p_catchup"))
		assert.Equal(t, 5, rowCount(t, db, "p_catchup_rows"))

		statuses, err := registry.Status(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 1)
		assert.False(t, statuses[0].Position.IsZero())
		assert.Zero(t, statuses[0].FailureCount)
	})

	t.Run("RedeliveryIsIdempotent", func(t *testing.T) {
		es, db := newTestEnv(t)
		registry, err := projection.NewRegistry(es, db, nil)
		require.NoError(t, err)

		handler := &countingHandler{name: "p_idem"}
		require.NoError(t, registry.Register(ctx, handler))

		pushOrg(t, es, "org-1", "Acme")
		require.NoError(t, registry.CatchUp(ctx, "p_idem"))

		// rewind the checkpoint as if the process had crashed before the
		// commit, then drain again
		_, err = db.Exec(`UPDATE current_states SET position_pos = 0, position_in_tx = 0 WHERE projection_name = 'p_idem'`)
		require.NoError(t, err)
		require.NoError(t, registry.CatchUp(ctx, "p_idem"))

		assert.Equal(t, 1, rowCount(t, db, "p_idem_rows"))
		assert.Equal(t, []string{"org-1", "org-1"}, handler.reduced)
	})

	t.Run("CatchUpByPollingOnly", func(t *testing.T) {
		// events pushed before the projection is registered are still found:
		// the drain reads from the checkpoint, not from notifications
		es, db := newTestEnv(t)
		pushOrg(t, es, "org-1", "Acme")
		pushOrg(t, es, "org-2", "Globex")

		registry, err := projection.NewRegistry(es, db, nil)
		require.NoError(t, err)
		handler := &countingHandler{name: "p_poll"}
		require.NoError(t, registry.Register(ctx, handler))

		require.NoError(t, registry.CatchUp(ctx, "p_poll"))
		assert.Equal(t, 2, rowCount(t, db, "p_poll_rows"))
	})

	t.Run("ParksAfterFailureBudgetAndSkipResumes", func(t *testing.T) {
		es, db := newTestEnv(t)
		registry, err := projection.NewRegistry(es, db, nil, projection.WithMaxFailureCount(2))
		require.NoError(t, err)

		handler := &countingHandler{name: "p_poison", failOn: "org-bad"}
		require.NoError(t, registry.Register(ctx, handler))

		pushOrg(t, es, "org-1", "Acme")
		pushOrg(t, es, "org-bad", "Poison")
		pushOrg(t, es, "org-2", "Globex")

		// budget of 2: both attempts fail on the poison event
		require.Error(t, registry.CatchUp(ctx, "p_poison"))
		require.Error(t, registry.CatchUp(ctx, "p_poison"))

		statuses, err := registry.Status(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 1)
		assert.True(t, statuses[0].Parked)
		assert.Equal(t, uint32(2), statuses[0].FailureCount)
		assert.Contains(t, statuses[0].LastError, "poison")

		// operator skips past the poison event
		events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder("inst-1").
			AggregateTypes("org").AggregateIDs("org-bad"))
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.NoError(t, registry.Skip(ctx, "p_poison", events[0].Position))

		require.NoError(t, registry.CatchUp(ctx, "p_poison"))
		assert.Equal(t, 2, rowCount(t, db, "p_poison_rows"))
	})
}

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *projection.CheckpointStore {
		t.Helper()
		db, err := database.Connect(":memory:", database.WithWALMode(false))
		require.NoError(t, err)
		t.Cleanup(func() { db.DB.Close() })
		store, err := projection.NewCheckpointStore(db)
		require.NoError(t, err)
		return store
	}

	t.Run("LeaseExcludesOtherOwners", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Register(ctx, "p"))

		ok, err := store.AcquireLease(ctx, "p", "owner-a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.AcquireLease(ctx, "p", "owner-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		// the holder can renew
		ok, err = store.AcquireLease(ctx, "p", "owner-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		// after release anyone can claim
		require.NoError(t, store.ReleaseLease(ctx, "p", "owner-a"))
		ok, err = store.AcquireLease(ctx, "p", "owner-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("LoadUnregisteredFails", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(ctx, "missing")
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("SkipOnlyMovesForward", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Register(ctx, "p"))

		require.NoError(t, store.Skip(ctx, "p", domain.Position{Pos: 10}))
		cp, err := store.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), cp.Position.Pos)

		// skipping backwards is a no-op
		require.NoError(t, store.Skip(ctx, "p", domain.Position{Pos: 5}))
		cp, err = store.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), cp.Position.Pos)
	})
}
