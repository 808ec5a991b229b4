package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/hash"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/otp"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
	"github.com/stretchr/testify/require"
)

const testConfig = `
modules:
  admin:
    otp:
      ttl_minutes: 10
      max_attempts: 5
      retention_minutes: 1440
      resend_cooldown_seconds: 0
    session:
      timeout_minutes: 60
      max_extend_minutes: 240
      min_extend_minutes: 1
      pointer_grace_minutes: 10
    notifier:
      expiry_layout: "2006-01-02 15:04 MST"
      timezone: UTC
`

var errStoreDown = errors.New("connection refused")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDB struct {
	mu      sync.Mutex
	members map[string]entity.Member
	err     error
}

func (f *fakeDB) GetMember(_ context.Context, address string) (*entity.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[address]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &m, nil
}

func (f *fakeDB) ListMembers(_ context.Context, onlyEnabled bool) ([]entity.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Member
	for _, m := range f.members {
		if onlyEnabled && !m.Enabled {
			continue
		}
		out = append(out, m)
	}
	return out, f.err
}

func (f *fakeDB) UpsertMember(_ context.Context, m entity.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.Address] = m
	return f.err
}

func (f *fakeDB) DisableMember(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[address]
	if !ok {
		return goerror.ErrNotFound
	}
	m.Enabled = false
	f.members[address] = m
	return nil
}

// fakeCache evicts a challenge once the clock reaches its keepUntil, like a
// key TTL would.
type fakeCache struct {
	mu         sync.Mutex
	clock      *fakeClock
	challenges map[string]entity.Challenge
	keepUntil  map[string]time.Time
	sessions   map[string]entity.SessionPointer
	writes     int
	err        error
}

func newFakeCache(clock *fakeClock) *fakeCache {
	return &fakeCache{
		clock:      clock,
		challenges: map[string]entity.Challenge{},
		keepUntil:  map[string]time.Time{},
		sessions:   map[string]entity.SessionPointer{},
	}
}

func (f *fakeCache) evict(address string) {
	until, ok := f.keepUntil[address]
	if ok && f.clock != nil && !f.clock.Now().Before(until) {
		delete(f.challenges, address)
		delete(f.keepUntil, address)
	}
}

func (f *fakeCache) SaveChallenge(_ context.Context, c entity.Challenge, keepUntil time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes++
	f.challenges[c.Address] = c
	f.keepUntil[c.Address] = keepUntil
	return nil
}

func (f *fakeCache) GetChallenge(_ context.Context, address string) (*entity.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(address)
	c, ok := f.challenges[address]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCache) UpdateChallenge(_ context.Context, address string, fn func(c *entity.Challenge) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.evict(address)
	c, ok := f.challenges[address]
	if !ok {
		return goerror.ErrNotFound
	}
	if fn(&c) {
		f.challenges[address] = c
	}
	return nil
}

func (f *fakeCache) SaveSession(_ context.Context, sid string, p entity.SessionPointer, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sessions[sid] = p
	return nil
}

func (f *fakeCache) GetSession(_ context.Context, sid string) (*entity.SessionPointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.sessions[sid]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &p, nil
}

func (f *fakeCache) DeleteSession(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sid)
	return nil
}

type fakeMessaging struct {
	mu     sync.Mutex
	events []entity.Event
}

func (f *fakeMessaging) PublishStepUp(_ context.Context, e entity.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeMessaging) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeIDP struct {
	mu         sync.Mutex
	identities map[string]entity.Identity
	signedOut  []string
	err        error
}

func (f *fakeIDP) Authenticate(_ context.Context, credential string) (*entity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.identities[credential]
	if !ok {
		return nil, entity.ErrInvalidCredential
	}
	return &id, nil
}

func (f *fakeIDP) SignOut(_ context.Context, identity entity.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, identity.Address)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	delivery entity.Delivery
	sent     []map[string]string
}

func (f *fakeNotifier) Send(_ context.Context, _ string, params map[string]string) (entity.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	if f.delivery.Status == "" {
		return entity.Delivery{Status: entity.DeliveryStatusDelivered}, nil
	}
	return f.delivery, nil
}

func (f *fakeNotifier) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1][entity.ParamCode]
}

type fakeSink struct {
	codes map[string]string
}

func (f *fakeSink) Record(_ context.Context, address, code string, _ time.Time) {
	f.codes[address] = code
}

type fakeEnforcer struct {
	policies map[string][][]string
}

func (f *fakeEnforcer) Enforce(rvals ...any) (bool, error) {
	role, _ := rvals[0].(string)
	obj, _ := rvals[1].(string)
	act, _ := rvals[2].(string)
	for _, p := range f.policies[role] {
		if (p[1] == "*" || p[1] == obj) && (p[2] == "*" || p[2] == act) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEnforcer) GetImplicitPermissionsForUser(user string, _ ...string) ([][]string, error) {
	return f.policies[user], nil
}

func (f *fakeEnforcer) GetPermissionsForUser(user string, _ ...string) ([][]string, error) {
	return f.policies[user], nil
}

func (f *fakeEnforcer) AddPermissionForUser(user string, permission ...string) (bool, error) {
	for _, p := range f.policies[user] {
		if p[1] == permission[0] && p[2] == permission[1] {
			return false, nil
		}
	}
	f.policies[user] = append(f.policies[user], append([]string{user}, permission...))
	return true, nil
}

func (f *fakeEnforcer) DeletePermissionForUser(user string, permission ...string) (bool, error) {
	for i, p := range f.policies[user] {
		if p[1] == permission[0] && p[2] == permission[1] {
			f.policies[user] = append(f.policies[user][:i], f.policies[user][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeIdempotency struct {
	idempotency.Idempotency
	err error
}

func (f *fakeIdempotency) Exec(ctx context.Context, _ string, fn func(context.Context) error, _ ...idempotency.Option) error {
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fixedCode string

func (c fixedCode) Generate() (string, error) { return string(c), nil }

type harness struct {
	uc        *Usecase
	clock     *fakeClock
	db        *fakeDB
	cache     *fakeCache
	msg       *fakeMessaging
	idp       *fakeIDP
	notifier  *fakeNotifier
	sink      *fakeSink
	enforcer  *fakeEnforcer
	idemp     *fakeIdempotency
	routine   *goroutine.Manager
	generator otp.Generator
}

func newHarness(t *testing.T, cfgYAML string) *harness {
	t.Helper()

	if cfgYAML == "" {
		cfgYAML = testConfig
	}
	cfg, err := config.NewViperFromBytes("yaml", []byte(cfgYAML))
	require.NoError(t, err)

	hmac, err := hash.NewHMACSHA256([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	numeric, err := otp.NewNumeric(6)
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}

	j, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(strings.Repeat("s", 64)),
		Issuer:    "stepguard",
		Audiences: []string{"admin"},
		Clock:     clk,
		UUID:      uid.NewUUID(),
	})
	require.NoError(t, err)

	h := &harness{
		clock: clk,
		db: &fakeDB{members: map[string]entity.Member{
			"admin@example.org": {
				Address: "admin@example.org", DisplayName: "Ada Admin", DisplayRole: "Chair",
				Role: "superadmin", Level: 1, Enabled: true,
			},
			"auditor@example.org": {
				Address: "auditor@example.org", DisplayName: "Alan Audit", DisplayRole: "Treasurer",
				Role: "auditor", Level: 3, Enabled: true,
			},
		}},
		cache: newFakeCache(clk),
		msg:   &fakeMessaging{},
		idp: &fakeIDP{identities: map[string]entity.Identity{
			"cred-admin":   {Address: "Admin@Example.org", DisplayName: "Ada", ProviderRef: "sub-admin"},
			"cred-auditor": {Address: "auditor@example.org", ProviderRef: "sub-auditor"},
			"cred-nobody":  {Address: "nobody@example.org", ProviderRef: "sub-nobody"},
		}},
		notifier: &fakeNotifier{},
		sink:     &fakeSink{codes: map[string]string{}},
		enforcer: &fakeEnforcer{policies: map[string][][]string{
			"superadmin": {{"superadmin", "members", "*"}, {"superadmin", "roles", "*"}, {"superadmin", "audit", "*"}},
			"auditor":    {{"auditor", "audit", "read"}},
		}},
		idemp:     &fakeIdempotency{},
		routine:   goroutine.NewManager(10),
		generator: numeric,
	}

	h.uc = New(Dependency{
		RepoDB:        h.db,
		RepoCache:     h.cache,
		RepoMessaging: h.msg,
		IdentityProv:  h.idp,
		Notifier:      h.notifier,
		CodeSink:      h.sink,
		Enforcer:      h.enforcer,
		Idempotency:   h.idemp,
		Validator:     v,
		Config:        cfg,
		HMAC:          hmac,
		OTP:           numeric,
		SessionID:     uid.NewUUID(),
		Clock:         clk,
		JWT:           j,
		Instrument:    instrument.NewNoop(),
		Goroutine:     h.routine,
	})

	return h
}

// events waits for pending publishes and returns the published event types.
func (h *harness) events() []string {
	_ = h.routine.Wait()
	return h.msg.types()
}

func (h *harness) claimsFor(sess *entity.Session) jwt.Claims {
	clm := jwt.Claims{SessionID: sess.ID, Address: sess.Address, Role: sess.Role, Permissions: sess.Permissions}
	clm.ID = sess.TokenID
	return clm
}

func testConfigWith(old, replacement string) string {
	return strings.Replace(testConfig, old, replacement, 1)
}
