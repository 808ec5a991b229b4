package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct{}

func (fakeClock) Now() time.Time { return now }

type fakeUID struct{ next int64 }

func (f *fakeUID) Generate() int64 {
	f.next++
	return f.next
}

type fakeDB struct {
	events []entity.Event
	filter entity.EventFilter
	err    error
}

func (f *fakeDB) CreateEvent(_ context.Context, e entity.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeDB) ListEvents(_ context.Context, filter entity.EventFilter) ([]entity.Event, error) {
	f.filter = filter
	return f.events, f.err
}

func (f *fakeDB) CountEvents(context.Context, entity.EventFilter) (int64, error) {
	return int64(len(f.events)), f.err
}

type fakeEnforcer map[string]bool

func (f fakeEnforcer) Enforce(rvals ...any) (bool, error) {
	return f[rvals[0].(string)], nil
}

func newUsecase(t *testing.T, db *fakeDB) *Usecase {
	t.Helper()

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	return New(Dependency{
		RepoDB:     db,
		Enforcer:   fakeEnforcer{"auditor": true},
		EventID:    &fakeUID{},
		Clock:      fakeClock{},
		Validator:  v,
		Instrument: instrument.NewNoop(),
	})
}

func TestConsumeStepUp(t *testing.T) {
	// Arrange
	db := &fakeDB{}
	uc := newUsecase(t, db)
	ctx := instrument.SetCorrelationID(context.Background(), "corr-1")
	occurred := now.Add(-time.Second)

	// Act
	err := uc.ConsumeStepUp(ctx, ConsumeStepUpInput{
		Type:       "challenge.issued",
		Address:    "admin@example.org",
		Detail:     map[string]string{"delivery_status": "delivered"},
		OccurredAt: occurred,
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, db.events, 1)
	e := db.events[0]
	assert.Equal(t, int64(1), e.ID)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, occurred, e.OccurredAt)
	assert.Equal(t, now, e.RecordedAt)
}

func TestConsumeStepUpDropsInvalid(t *testing.T) {
	db := &fakeDB{}

	err := newUsecase(t, db).ConsumeStepUp(context.Background(), ConsumeStepUpInput{})

	assert.NoError(t, err)
	assert.Empty(t, db.events)
}

func TestConsumeStepUpStoreFailure(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}

	err := newUsecase(t, db).ConsumeStepUp(context.Background(), ConsumeStepUpInput{Type: "session.logout"})

	assert.Equal(t, goerror.CodeInternal, goerror.CodeOf(err))
}

func TestListEvents(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		in   ListEventsInput
		code goerror.Code
	}{
		{
			name: "anonymous",
			ctx:  context.Background(),
			code: goerror.CodeUnauthorized,
		},
		{
			name: "role without audit access",
			ctx:  jwt.SetAuth(context.Background(), jwt.Claims{Role: "operator"}),
			code: goerror.CodeForbidden,
		},
		{
			name: "limit too large",
			ctx:  jwt.SetAuth(context.Background(), jwt.Claims{Role: "auditor"}),
			in:   ListEventsInput{Limit: 500},
			code: goerror.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newUsecase(t, &fakeDB{}).ListEvents(tt.ctx, tt.in)

			assert.Equal(t, tt.code, goerror.CodeOf(err))
		})
	}
}

func TestListEventsDefaultsAndNormalizes(t *testing.T) {
	// Arrange
	db := &fakeDB{events: []entity.Event{{ID: 1, Type: "session.started"}}}
	ctx := jwt.SetAuth(context.Background(), jwt.Claims{Role: "auditor"})

	// Act
	out, err := newUsecase(t, db).ListEvents(ctx, ListEventsInput{Address: " Admin@Example.org "})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Equal(t, int32(50), out.Limit)
	assert.Equal(t, "admin@example.org", db.filter.Address)
}
