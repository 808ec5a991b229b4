package db

import (
	"context"

	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/pgsql"
	"go.opentelemetry.io/otel/trace"
)

// DB stores the audit trail. Rows are append-only.
type DB struct {
	conn   pgsql.Querier
	tracer pgsql.Tracer
}

func NewDB(conn pgsql.Querier, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, tracer: pgsql.NewTracer(ins, "audit.outbound.db")}
}

func (s *DB) mapError(err error) error { return pgsql.MapError(err) }

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) { pgsql.End(span, err) }
