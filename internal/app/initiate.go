package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/stepguard/internal/admin"
	"github.com/shandysiswandi/stepguard/internal/pkg/clock"
	"github.com/shandysiswandi/stepguard/internal/pkg/config"
	"github.com/shandysiswandi/stepguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/stepguard/internal/pkg/hash"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/pkg/instrument"
	"github.com/shandysiswandi/stepguard/internal/pkg/jwt"
	"github.com/shandysiswandi/stepguard/internal/pkg/mail"
	"github.com/shandysiswandi/stepguard/internal/pkg/messaging"
	"github.com/shandysiswandi/stepguard/internal/pkg/migration"
	"github.com/shandysiswandi/stepguard/internal/pkg/pgxcasbin"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
	"github.com/shandysiswandi/stepguard/internal/pkg/uid"
	"github.com/shandysiswandi/stepguard/internal/pkg/validator"
	"google.golang.org/api/option"
)

const pingTimeout = 5 * time.Second

// rbacModel lets a role hold "*" as object or action; role inheritance is
// declared with g policies.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// initConfig reads CONFIG_PATH, falling back to ./config/config.yaml.
func (a *App) initConfig() error {
	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		return err
	}
	a.config = cfg
	a.onClose("config", func(context.Context) error { return cfg.Close() })

	if tz := cfg.GetString("app.tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("app.tz: %w", err)
		}
		time.Local = loc
	}
	return nil
}

func (a *App) initInstrument() error {
	ins, err := instrument.New(a.ctx, &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		return err
	}
	a.ins = ins
	a.onClose("instrument", ins.Shutdown)
	return nil
}

func (a *App) initLibraries() error {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	var err error
	if a.hmac, err = hash.NewHMACSHA256(a.config.GetBinary("hash.hmac.secret")); err != nil {
		return fmt.Errorf("hash.hmac.secret: %w", err)
	}
	if a.validator, err = validator.NewV10Validator(); err != nil {
		return err
	}

	node := int64(-1)
	if n := a.config.GetInt("app.snowflake_node"); n > 0 {
		node = int64(n)
	}
	if a.snowflake, err = uid.NewSnowflake(node); err != nil {
		return err
	}
	return nil
}

func (a *App) initJWT() error {
	j, err := jwt.NewHS512(jwt.Config{
		Secret:    a.config.GetBinary("jwt.secret"),
		Issuer:    a.config.GetString("jwt.issuer"),
		Audiences: a.config.GetArray("jwt.audiences"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		return fmt.Errorf("jwt.secret: %w", err)
	}
	a.jwt = j
	return nil
}

func (a *App) initDatabase() error {
	pc, err := pgxpool.ParseConfig(a.config.GetString("database.url"))
	if err != nil {
		return err
	}
	pc.MaxConns = a.config.GetInt32("database.pool.max_conns")
	pc.MinConns = a.config.GetInt32("database.pool.min_conns")
	pc.MaxConnLifetime = a.config.GetSecond("database.pool.max_conn_lifetime_seconds")
	pc.MaxConnIdleTime = a.config.GetSecond("database.pool.max_conn_idle_seconds")
	pc.HealthCheckPeriod = a.config.GetSecond("database.pool.health_check_period_seconds")

	pool, err := pgxpool.NewWithConfig(a.ctx, pc)
	if err != nil {
		return err
	}
	a.onClose("database", func(context.Context) error { pool.Close(); return nil })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.dbConn = pool
	return nil
}

func (a *App) initMigration() error {
	if !a.config.GetBool("database.migrate") {
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, time.Minute)
	defer cancel()
	if err := migration.Up(ctx, a.dbConn); err != nil {
		return err
	}
	slog.Info("database migrations applied")
	return nil
}

func (a *App) initCache() error {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		return err
	}

	rdb := redis.NewClient(opt)
	a.onClose("redis", func(context.Context) error { return rdb.Close() })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(rdb)
	return nil
}

// initMail leaves a.mail nil when mail.host is empty. Codes are then
// reported as undelivered instead of failing boot.
func (a *App) initMail() error {
	host := strings.TrimSpace(a.config.GetString("mail.host"))
	if host == "" {
		slog.Warn("mail.host is empty, verification codes will not be delivered")
		return nil
	}

	m, err := mail.NewSMTP(mail.SMTPConfig{
		Host:        host,
		Port:        a.config.GetInt("mail.port"),
		Username:    a.config.GetString("mail.username"),
		Password:    a.config.GetString("mail.password"),
		From:        a.config.GetString("mail.from"),
		DialTimeout: a.config.GetSecond("mail.dial_timeout_seconds"),
	})
	if err != nil {
		return err
	}
	a.mail = m
	a.onClose("mail", func(context.Context) error { return m.Close() })
	return nil
}

func (a *App) pubsubOptions() []option.ClientOption {
	var opts []option.ClientOption
	if v := strings.TrimSpace(a.config.GetString("messaging.pubsub.endpoint")); v != "" {
		opts = append(opts, option.WithEndpoint(v))
	}
	if a.config.GetBool("messaging.pubsub.without_auth") {
		opts = append(opts, option.WithoutAuthentication())
	}
	if v := strings.TrimSpace(a.config.GetString("messaging.pubsub.credentials_file")); v != "" {
		opts = append(opts, option.WithCredentialsFile(v))
	}
	return opts
}

func (a *App) initMessaging() error {
	driver := a.config.GetString("messaging.driver")

	client, err := messaging.NewFromDriver(a.ctx, driver, messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:         a.config.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    a.config.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: a.config.GetArray("messaging.nsq.consumer_lookupd_addrs"),
		},
		Kafka: messaging.KafkaConfig{
			Brokers:     a.config.GetArray("messaging.kafka.brokers"),
			ClientID:    a.config.GetString("messaging.kafka.client_id"),
			DialTimeout: a.config.GetSecond("messaging.kafka.dial_timeout_seconds"),
		},
		NATS: messaging.NATSConfig{
			URL: a.config.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("messaging.nats.name")),
				nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
				nats.Timeout(a.config.GetSecond("messaging.nats.timeout_seconds")),
				nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.PingInterval(a.config.GetSecond("messaging.nats.ping_interval_seconds")),
				nats.MaxPingsOutstanding(a.config.GetInt("messaging.nats.max_pings_outstanding")),
				nats.RetryOnFailedConnect(a.config.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		PubSub: messaging.PubSubConfig{
			ProjectID:     a.config.GetString("messaging.pubsub.project_id"),
			ClientOptions: a.pubsubOptions(),
		},
	})
	if err != nil {
		return fmt.Errorf("driver %q: %w", driver, err)
	}

	a.messaging = client
	a.onClose("messaging", func(context.Context) error { return client.Close() })
	return nil
}

func (a *App) initCasbin() error {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return err
	}
	adapter, err := pgxcasbin.NewAdapter(a.ctx, a.dbConn)
	if err != nil {
		return err
	}
	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return err
	}

	watcher, err := pgxcasbin.NewWatcher(a.ctx, a.dbConn, a.config.GetString("casbin.watcher_channel"))
	if err != nil {
		return err
	}
	a.onClose("casbin watcher", func(context.Context) error { watcher.Close(); return nil })

	if err := watcher.SetUpdateCallback(pgxcasbin.ReloadCallback(e.LoadPolicy)); err != nil {
		return err
	}
	if err := e.SetWatcher(watcher); err != nil {
		return err
	}
	e.EnableAutoSave(true)
	e.EnableAutoNotifyWatcher(true)

	// A NOTIFY missed while the listener reconnects is healed here.
	if every := a.config.GetSecond("casbin.reload_interval_seconds"); every > 0 {
		a.goroutine.Go(a.ctx, func(ctx context.Context) error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := e.LoadPolicy(); err != nil {
						slog.WarnContext(ctx, "failed to reload casbin policy", "error", err)
					}
				}
			}
		})
	}

	a.casbin = e
	return nil
}

func (a *App) initHTTPServer() error {
	a.router = router.NewRouter(router.Config{
		Config:          a.config,
		UUID:            a.uuid,
		JWT:             a.jwt,
		Instrument:      a.ins,
		PublicEndpoints: admin.DebugEndpoints(),
		HealthChecks: map[string]router.HealthCheck{
			"postgres": a.dbConn.Ping,
			"redis":    func(ctx context.Context) error { return a.cacheConn.Ping(ctx).Err() },
		},
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", router.HeaderCorrelationID, router.HeaderRequestID},
		ExposedHeaders:   []string{router.HeaderCorrelationID},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           handler,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
	return nil
}
