package pgxcasbin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/casbin/casbin/v3/persist"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

const defaultChannel = "stepguard_casbin_watcher"

var channelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Watcher broadcasts policy changes over Postgres LISTEN/NOTIFY so every
// replica reloads its enforcer after a grant or revoke.
type Watcher struct {
	mu       sync.RWMutex
	pool     *pgxpool.Pool
	channel  string
	localID  string
	callback func(string)
	cancel   context.CancelFunc
}

var _ persist.Watcher = (*Watcher)(nil)

// message is the NOTIFY payload.
type message struct {
	Method string `json:"method"`
	ID     string `json:"id"`
}

// NewWatcher starts listening on channel using a dedicated pool connection.
// The listener reconnects with a capped Fibonacci backoff until Close.
func NewWatcher(ctx context.Context, pool *pgxpool.Pool, channel string) (*Watcher, error) {
	if channel == "" {
		channel = defaultChannel
	}
	if !channelPattern.MatchString(channel) {
		return nil, ErrInvalidChannel
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Join(ErrPingPool, err)
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &Watcher{
		pool:    pool,
		channel: channel,
		localID: uuid.NewString(),
		cancel:  cancel,
	}

	go func() {
		b := retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))
		err := retry.Do(listenCtx, b, func(ctx context.Context) error {
			err := w.listen(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.WarnContext(ctx, "pgxcasbin listener dropped, reconnecting", "channel", w.channel, "error", err)
			return retry.RetryableError(err)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pgxcasbin listener stopped", "channel", w.channel, "error", err)
		}
	}()

	return w, nil
}

// SetUpdateCallback registers the handler invoked when another replica
// publishes a change.
func (w *Watcher) SetUpdateCallback(callback func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = callback
	return nil
}

// Update notifies every listener that the policy changed.
func (w *Watcher) Update() error {
	b, err := json.Marshal(message{Method: "Update", ID: w.localID})
	if err != nil {
		return err
	}

	if _, err := w.pool.Exec(context.Background(), "SELECT pg_notify($1, $2)", w.channel, string(b)); err != nil {
		return errors.Join(ErrNotifyMessage, err)
	}

	return nil
}

// Close stops the listener. The pool stays owned by the caller.
func (w *Watcher) Close() {
	w.cancel()
}

func (w *Watcher) listen(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return errors.Join(ErrAcquireConn, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+w.channel); err != nil {
		return errors.Join(ErrListenChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var m message
		if err := json.Unmarshal([]byte(n.Payload), &m); err != nil {
			slog.WarnContext(ctx, "pgxcasbin ignored malformed notification", "payload", n.Payload, "error", err)
			continue
		}
		if m.ID == w.localID {
			continue
		}

		w.mu.RLock()
		cb := w.callback
		w.mu.RUnlock()
		if cb != nil {
			cb(n.Payload)
		}
	}
}

// ReloadCallback returns a watcher callback that reloads the whole policy
// through load, typically an enforcer's LoadPolicy.
func ReloadCallback(load func() error) func(string) {
	return func(payload string) {
		if err := load(); err != nil {
			slog.Error("pgxcasbin failed to reload policy", "payload", payload, "error", err)
			return
		}
		slog.Info("pgxcasbin policy reloaded after remote change")
	}
}
