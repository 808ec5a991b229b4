package pgxcasbin

import (
	"context"
	"errors"

	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/persist"
)

// Adapter stores and retrieves Casbin policies in the casbin_rule table using pgx.
type Adapter struct {
	store *store
}

var _ persist.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithTableName overrides the default casbin_rule table name.
func WithTableName(tableName string) Option {
	return func(a *Adapter) {
		a.store.tableName = tableName
	}
}

// NewAdapter creates a pgx-backed Casbin adapter. The table is expected to
// exist already; migrations own the schema.
func NewAdapter(ctx context.Context, db interface {
	Ping(ctx context.Context) error
	Commander
}, opts ...Option) (*Adapter, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, errors.Join(ErrPingPool, err)
	}

	a := &Adapter{store: newStore(db)}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// LoadPolicy loads all policies into the model.
func (a *Adapter) LoadPolicy(m model.Model) error {
	lines, err := a.store.selectAll(context.Background())
	if err != nil {
		return err
	}

	for _, line := range lines {
		if err := persist.LoadPolicyArray(line, m); err != nil {
			return err
		}
	}

	return nil
}

// SavePolicy replaces the stored policies with the ones held by the model.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules [][]string
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				rules = append(rules, append([]string{ptype}, rule...))
			}
		}
	}

	return a.store.replaceAll(context.Background(), rules)
}

// AddPolicy stores a single rule. Adding an existing rule is a no-op.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	return a.store.insert(context.Background(), a.store.db, ptype, rule)
}

// RemovePolicy deletes a single rule.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	return a.store.delete(context.Background(), ptype, rule)
}

// RemoveFilteredPolicy deletes rules matching the non-empty field values
// starting at fieldIndex.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	return a.store.deleteFiltered(context.Background(), ptype, fieldIndex, fieldValues...)
}
