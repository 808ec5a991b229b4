package pgxcasbin

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

const fieldCount = 6

// Commander is the subset of pgx used by the store. *pgxpool.Pool satisfies it.
type Commander interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type store struct {
	db        Commander
	tableName string
}

func newStore(db Commander) *store {
	return &store{db: db, tableName: "casbin_rule"}
}

func valueColumns() string {
	return strings.Join(lo.Times(fieldCount, func(i int) string { return "v" + strconv.Itoa(i) }), ", ")
}

func (s *store) selectAll(ctx context.Context) ([][]string, error) {
	rows, err := s.db.Query(ctx, "SELECT ptype, "+valueColumns()+" FROM "+s.tableName+" ORDER BY id")
	if err != nil {
		return nil, errors.Join(ErrSelectRules, err)
	}
	defer rows.Close()

	var lines [][]string
	for rows.Next() {
		cols := make([]string, fieldCount+1)
		if err := rows.Scan(lo.ToAnySlice(lo.Map(cols, func(_ string, i int) *string { return &cols[i] }))...); err != nil {
			return nil, errors.Join(ErrSelectRules, err)
		}
		lines = append(lines, trimRule(cols))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrSelectRules, err)
	}

	return lines, nil
}

func (s *store) insert(ctx context.Context, db execer, ptype string, rule []string) error {
	padded, err := padRule(rule)
	if err != nil {
		return err
	}

	placeholders := strings.Join(lo.Times(fieldCount+1, func(i int) string { return "$" + strconv.Itoa(i+1) }), ", ")
	sql := "INSERT INTO " + s.tableName + " (ptype, " + valueColumns() + ") VALUES (" + placeholders + ") ON CONFLICT DO NOTHING"
	if _, err := db.Exec(ctx, sql, lo.ToAnySlice(append([]string{ptype}, padded...))...); err != nil {
		return errors.Join(ErrInsertRow, err)
	}

	return nil
}

func (s *store) replaceAll(ctx context.Context, rules [][]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Join(ErrBeginTx, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM "+s.tableName); err != nil {
		return errors.Join(ErrDeleteRow, err)
	}
	for _, rule := range rules {
		if err := s.insert(ctx, tx, rule[0], rule[1:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrCommitTx, err)
	}

	return nil
}

func (s *store) delete(ctx context.Context, ptype string, rule []string) error {
	padded, err := padRule(rule)
	if err != nil {
		return err
	}

	where := strings.Join(lo.Times(fieldCount, func(i int) string {
		return "v" + strconv.Itoa(i) + " = $" + strconv.Itoa(i+2)
	}), " AND ")
	if _, err := s.db.Exec(ctx, "DELETE FROM "+s.tableName+" WHERE ptype = $1 AND "+where,
		lo.ToAnySlice(append([]string{ptype}, padded...))...); err != nil {
		return errors.Join(ErrDeleteRow, err)
	}

	return nil
}

func (s *store) deleteFiltered(ctx context.Context, ptype string, fieldIndex int, values ...string) error {
	if fieldIndex < 0 || fieldIndex+len(values) > fieldCount {
		return ErrRuleTooLong
	}

	conds := []string{"ptype = $1"}
	args := []any{ptype}
	for i, v := range values {
		if v == "" {
			continue
		}
		args = append(args, v)
		conds = append(conds, "v"+strconv.Itoa(fieldIndex+i)+" = $"+strconv.Itoa(len(args)))
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM "+s.tableName+" WHERE "+strings.Join(conds, " AND "), args...); err != nil {
		return errors.Join(ErrDeleteRow, err)
	}

	return nil
}

// padRule right-pads a rule with empty strings up to the value column count.
func padRule(rule []string) ([]string, error) {
	if len(rule) == 0 {
		return nil, ErrRuleEmpty
	}
	if len(rule) > fieldCount {
		return nil, ErrRuleTooLong
	}

	return append(append(make([]string, 0, fieldCount), rule...), make([]string, fieldCount-len(rule))...), nil
}

// trimRule drops trailing empty columns from a stored row.
func trimRule(cols []string) []string {
	end := len(cols)
	for end > 1 && cols[end-1] == "" {
		end--
	}
	return cols[:end]
}
