package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	apihttp "teamrelay/internal/api/http"
	"teamrelay/internal/changefeed"
	natsfeed "teamrelay/internal/changefeed/nats"
	"teamrelay/internal/changefeed/realtime"
	"teamrelay/internal/config"
	"teamrelay/internal/dedupe"
	redisdedupe "teamrelay/internal/dedupe/redis"
	"teamrelay/internal/mailer"
	"teamrelay/internal/metrics"
	natspub "teamrelay/internal/pubsub/nats"
	"teamrelay/internal/security"
	"teamrelay/internal/service"
	"teamrelay/internal/stores/clickhouse"
	"teamrelay/internal/stores/redis"

	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	log logger.Logger
	app *App

	// infra
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *natspub.Client

	// deduper
	memDedupe *dedupe.MemoryDedupe

	// services
	relay *service.Relay

	// servers
	httpSrv *apihttp.Server

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start(ctx context.Context) <-chan error {
	return c.app.Start(ctx)
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

func newLogger(cfg *config.LoggingConfig) logger.Logger {
	return logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Level,
		Format: cfg.Format,
	})
}

// Build constructs the relay image; on error everything opened so far is released
func Build(ctx context.Context, cfg *config.Config, lg logger.Logger) (c *Container, cleanupF func(), err error) {
	c = &Container{log: lg}
	cleanupF = func() { c.cleanup() }

	defer func() {
		if err != nil {
			cleanupF()
			c, cleanupF = nil, nil
		}
	}()

	if c.profiler, err = metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope); err != nil {
		return c, cleanupF, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if c.profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	deduper, err := c.buildDeduper(ctx, cfg)
	if err != nil {
		return c, cleanupF, err
	}

	// Mail
	renderer, err := mailer.NewRenderer(cfg.Mail.Subject, cfg.Mail.HTMLTemplatePath, cfg.Mail.TextTemplatePath)
	if err != nil {
		return c, cleanupF, fmt.Errorf("failed to initialize mail templates: %w", err)
	}
	transport, err := mailer.NewSMTPTransport(lg, &cfg.Mail)
	if err != nil {
		return c, cleanupF, fmt.Errorf("failed to initialize smtp transport: %w", err)
	}
	lg.Infof("Successfully initialize SMTP transport %s:%d", cfg.Mail.Host, cfg.Mail.Port)

	// NATS, needed as change feed or as outcome broadcaster
	if cfg.ChangeFeed.Source == config.SourceNATS || (cfg.PubSub.NATS.URL != "" && cfg.PubSub.NATS.NotifySubject != "") {
		if c.nc, err = natspub.Connect(&cfg.PubSub.NATS, lg); err != nil {
			return c, cleanupF, fmt.Errorf("failed to initialize nats client: %w", err)
		}
	}

	source, err := c.buildSource(cfg)
	if err != nil {
		return c, cleanupF, err
	}

	// ClickHouse journal
	if cfg.Stores.ClickHouse.Enabled {
		if c.ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return c, cleanupF, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
		lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

		c.chWriter = clickhouse.NewWriter(lg, c.ch.Native, cfg.Stores.ClickHouse)
		lg.Info("Successfully initialize clickhouse writer")
	}

	// Service Layer
	opts := []service.NotifierOption{}
	if c.nc != nil {
		opts = append(opts, service.WithBroadcaster(c.nc, cfg.PubSub.NATS.NotifySubject))
	}
	if c.chWriter != nil {
		opts = append(opts, service.WithJournal(c.chWriter))
	}
	notifier := service.NewNotifier(lg, deduper, renderer, transport, opts...)

	c.relay = service.NewRelay(lg, source, notifier, changefeed.Filter{
		Event:  "UPDATE",
		Schema: cfg.ChangeFeed.Schema,
		Table:  cfg.ChangeFeed.Table,
	})
	if h, ok := deduper.(service.Healthy); ok {
		c.relay.AddDependency("dedupe", h)
	}
	if c.nc != nil {
		c.relay.AddDependency("nats", c.nc)
	}
	if c.ch != nil {
		c.relay.AddDependency("clickhouse", c.ch)
	}

	// HTTP Server
	c.httpSrv = apihttp.NewServer(lg, &cfg.API.HTTP, c.relay)
	lg.Info("Successfully initialize HTTP server")

	c.app = NewApp(lg, c.httpSrv, c.relay)

	lg.Info("Successfully initialize Wiring")
	return c, cleanupF, nil
}

func (c *Container) buildDeduper(ctx context.Context, cfg *config.Config) (dedupe.Deduper, error) {
	switch cfg.Dedupe.Backend {
	case config.DedupeRedis:
		rdb, err := redis.New(ctx, c.log, &cfg.Stores.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		c.redis = rdb

		deduper, err := redisdedupe.NewRedisDeduper(c.log, &cfg.Dedupe, rdb)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
		}
		c.log.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Dedupe.Prefix)
		return deduper, nil
	default:
		c.memDedupe = dedupe.NewInMemoryDedupe(c.log, cfg.Dedupe.TTL, cfg.Dedupe.JanitorEvery)
		c.log.Infof("Successfully initialize in-memory Deduper, window=%s", cfg.Dedupe.TTL)
		return c.memDedupe, nil
	}
}

func (c *Container) buildSource(cfg *config.Config) (changefeed.Source, error) {
	switch cfg.ChangeFeed.Source {
	case config.SourceNATS:
		src, err := natsfeed.NewSource(c.log, c.nc.Conn(), cfg.PubSub.NATS.ChangeSubject)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize nats change feed: %w", err)
		}
		return src, nil
	default:
		info, err := security.InspectAPIKey(cfg.Supabase.AnonKey, time.Now())
		if err != nil {
			return nil, fmt.Errorf("invalid SUPABASE_ANON_KEY: %w", err)
		}
		if info.Privileged() {
			c.log.Warn("SUPABASE_ANON_KEY carries the service_role role, an anon key is enough for the relay")
		}

		src, err := realtime.New(c.log, &cfg.Supabase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize realtime client: %w", err)
		}
		return src, nil
	}
}

func (c *Container) cleanup() {
	ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error

	if c.chWriter != nil {
		if err = c.chWriter.Close(ctxClean); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
		}
	}

	if c.ch != nil {
		if err = c.ch.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
		}
	}

	if c.nc != nil {
		if err = c.nc.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF nats client: %v", err)
		}
	}

	if c.redis != nil {
		if err = c.redis.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF redis client: %v", err)
		}
	}

	if c.memDedupe != nil {
		c.memDedupe.Close()
	}

	if c.profiler != nil {
		if err = c.profiler.Stop(); err != nil {
			c.log.Errorf("Failed to stop profiler: %v", err)
		}
	}

	c.log.Info("Successfully cleaned up dependency")
}
