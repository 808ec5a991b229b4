package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stepguard"),
		tcpostgres.WithUsername("stepguard"),
		tcpostgres.WithPassword("stepguard"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migration.Up(ctx, pool))

	return NewDB(pool, instrument.NewNoop())
}

func TestEventsFilterAndPage(t *testing.T) {
	// Arrange
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	events := []entity.Event{
		{ID: 1, Type: "challenge.issued", Address: "admin@example.org", OccurredAt: base},
		{ID: 2, Type: "challenge.failed", Address: "admin@example.org", OccurredAt: base.Add(time.Minute),
			Detail: map[string]string{"remaining_attempts": "4"}},
		{ID: 3, Type: "challenge.issued", Address: "auditor@example.org", OccurredAt: base.Add(2 * time.Minute)},
		{ID: 4, Type: "session.started", Address: "admin@example.org", SessionID: "sid-1", CorrelationID: "c-1",
			OccurredAt: base.Add(3 * time.Minute)},
	}
	for _, e := range events {
		e.RecordedAt = e.OccurredAt
		require.NoError(t, db.CreateEvent(ctx, e))
	}

	// Act
	all, err := db.ListEvents(ctx, entity.EventFilter{Limit: 10})
	require.NoError(t, err)
	admin, err := db.ListEvents(ctx, entity.EventFilter{Address: "admin@example.org", Limit: 2})
	require.NoError(t, err)
	issued, err := db.CountEvents(ctx, entity.EventFilter{Type: "challenge.issued"})
	require.NoError(t, err)

	// Assert
	require.Len(t, all, 4)
	assert.Equal(t, int64(4), all[0].ID)
	assert.Equal(t, "sid-1", all[0].SessionID)
	assert.Equal(t, "c-1", all[0].CorrelationID)

	require.Len(t, admin, 2)
	assert.Equal(t, int64(4), admin[0].ID)
	assert.Equal(t, int64(2), admin[1].ID)
	assert.Equal(t, "4", admin[1].Detail["remaining_attempts"])

	assert.Equal(t, int64(2), issued)
}

func TestCreateEventDuplicateID(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	e := entity.Event{ID: 7, Type: "session.logout", OccurredAt: time.Now(), RecordedAt: time.Now()}

	require.NoError(t, db.CreateEvent(ctx, e))
	err := db.CreateEvent(ctx, e)

	assert.Error(t, err)
}
