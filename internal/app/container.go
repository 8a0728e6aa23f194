package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/outbound-batch-dialer/internal/config"
	"github.com/acme/outbound-batch-dialer/internal/dialer"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
	"github.com/acme/outbound-batch-dialer/internal/gateway/clicktobot"
	"github.com/acme/outbound-batch-dialer/internal/gateway/mock"
	"github.com/acme/outbound-batch-dialer/internal/infra/db"
	"github.com/acme/outbound-batch-dialer/internal/infra/redis"
	"github.com/acme/outbound-batch-dialer/internal/queue"
	"github.com/acme/outbound-batch-dialer/internal/repository"
	pgrepo "github.com/acme/outbound-batch-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/outbound-batch-dialer/internal/repository/scylla"
	"github.com/acme/outbound-batch-dialer/internal/service/concurrency"
	"github.com/acme/outbound-batch-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		dispatchers  *dispatchers
		providers    *providers
		limiters     *limiters
	}
}

type repositories struct {
	Groups  repository.GroupRepository
	Agents  repository.AgentRepository
	APIKeys repository.APIKeyStore
	Stats   repository.GroupStatisticsRepository
	Results repository.ResultStore
}

type services struct {
	Sessions *dialer.Manager
}

type dispatchers struct {
	ResultPublisher *queue.ResultPublisher
}

type providers struct {
	Gateways gateway.Factory
}

type limiters struct {
	GroupLock *concurrency.GroupLock
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	gateways, err := NewGatewayFactory(cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("bootstrap gateway: %w", err)
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis, cfg.App.Name)
	if err != nil {
		scylla.Close()
		pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		redisClient.Close()
		scylla.Close()
		pg.Close(ctx)
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}
	c.components.providers = &providers{Gateways: gateways}
	return c, nil
}

// NewGatewayFactory selects the call placement backend named by cfg.
func NewGatewayFactory(cfg config.GatewayConfig) (gateway.Factory, error) {
	switch cfg.Provider {
	case "clicktobot":
		return clicktobot.NewClient(cfg), nil
	case "mock", "":
		return mock.NewGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Groups:  pgrepo.NewGroupRepository(c.Postgres.DB()),
			Agents:  pgrepo.NewAgentRepository(c.Postgres.DB()),
			APIKeys: pgrepo.NewAPIKeyRepository(c.Postgres.DB()),
			Stats:   pgrepo.NewGroupStatisticsRepository(c.Postgres.DB()),
			Results: scyllarepo.NewResultStore(c.Scylla.Session()),
		}

		disp := &dispatchers{
			ResultPublisher: queue.NewResultPublisher(c.Kafka, c.Config.Kafka.ResultTopic),
		}

		provs := c.components.providers

		lims := &limiters{
			GroupLock: concurrency.NewGroupLock(c.Redis.Inner(), c.Config.Dialer.LockKeyPrefix, c.Config.Dialer.LockTTL),
		}

		svcs := &services{
			Sessions: dialer.NewManager(
				dialer.ManagerConfig{
					InterCallDelay:      c.Config.Dialer.InterCallDelay,
					MaxSessions:         c.Config.Dialer.MaxSessions,
					LockRefreshInterval: lims.GroupLock.RefreshInterval(),
				},
				dialer.ManagerDeps{
					Groups:   repos.Groups,
					Agents:   repos.Agents,
					Keys:     repos.APIKeys,
					Gateways: provs.Gateways,
					Locker:   lims.GroupLock,
					Recorder: disp.ResultPublisher,
					Logger:   c.Logger.Named("dialer"),
				},
			),
		}

		c.components.repositories = repos
		c.components.dispatchers = disp
		c.components.services = svcs
		c.components.limiters = lims
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Close stops live sessions and releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if s := c.components.services; s != nil && s.Sessions != nil {
		if err := s.Sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sessions shutdown: %w", err))
		}
	}
	if d := c.components.dispatchers; d != nil && d.ResultPublisher != nil {
		if err := d.ResultPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("result publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	partitions := c.Config.Kafka.Partitions
	if partitions <= 0 {
		partitions = 12
	}
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.ResultTopic}, partitions, 1)
}
