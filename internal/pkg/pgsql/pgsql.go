// Package pgsql holds what the Postgres repositories share: the statement
// surface they run on, error translation and span bookkeeping.
package pgsql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const codeUniqueViolation = "23505"

// Querier is the subset of *pgxpool.Pool (and pgx.Tx) a repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MapError turns pgx.ErrNoRows into goerror.ErrNotFound and a unique
// violation into goerror.ErrConflict. Other errors pass through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return goerror.ErrConflict
	}
	return err
}

type Tracer struct {
	tracer trace.Tracer
}

func NewTracer(ins instrument.Instrumentation, scope string) Tracer {
	return Tracer{tracer: ins.Tracer(scope)}
}

// Start opens a client span for one repository call.
func (t Tracer) Start(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.operation.name", op)),
	)
}

// End closes span. Missing rows and conflicts are expected outcomes and do not
// mark the span as failed.
func End(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
