package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
)

const memberColumns = `address, display_name, display_role, role, level, enabled, created_at, updated_at`

func scanMember(row pgx.Row) (*entity.Member, error) {
	var m entity.Member
	if err := row.Scan(
		&m.Address,
		&m.DisplayName,
		&m.DisplayRole,
		&m.Role,
		&m.Level,
		&m.Enabled,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *DB) GetMember(ctx context.Context, address string) (_ *entity.Member, err error) {
	ctx, span := s.startSpan(ctx, "GetMember")
	defer func() { s.endSpan(span, err) }()

	m, err := scanMember(s.conn.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM admin_members WHERE address = $1`, address))
	if err != nil {
		return nil, s.mapError(err)
	}

	return m, nil
}

func (s *DB) ListMembers(ctx context.Context, onlyEnabled bool) (_ []entity.Member, err error) {
	ctx, span := s.startSpan(ctx, "ListMembers")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx,
		`SELECT `+memberColumns+` FROM admin_members
		WHERE (NOT $1 OR enabled)
		ORDER BY level, address`, onlyEnabled)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	members := make([]entity.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, s.mapError(err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return members, nil
}

func (s *DB) UpsertMember(ctx context.Context, m entity.Member) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertMember")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx,
		`INSERT INTO admin_members (address, display_name, display_role, role, level, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			display_role = EXCLUDED.display_role,
			role = EXCLUDED.role,
			level = EXCLUDED.level,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()`,
		m.Address, m.DisplayName, m.DisplayRole, m.Role, m.Level, m.Enabled)

	return s.mapError(err)
}

func (s *DB) DisableMember(ctx context.Context, address string) (err error) {
	ctx, span := s.startSpan(ctx, "DisableMember")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx,
		`UPDATE admin_members SET enabled = FALSE, updated_at = NOW() WHERE address = $1`, address)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	return nil
}
