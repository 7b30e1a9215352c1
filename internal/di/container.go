package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	accesshttp "firestore-access/internal/access/adapter/http"
	"firestore-access/internal/access/adapter/persistence/memory"
	"firestore-access/internal/access/adapter/persistence/mongodb"
	auditredis "firestore-access/internal/access/adapter/persistence/redis"
	"firestore-access/internal/access/adapter/validation"
	"firestore-access/internal/access/config"
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/access/usecase"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Container owns the access service's collaborators and their lifecycle.
type Container struct {
	mu sync.RWMutex

	Config *config.Config
	Logger logger.Logger

	MongoClient *mongo.Client
	RedisClient *redis.Client

	Store    repository.Store
	Bus      *eventbus.EventBus
	Audit    *auditredis.AuditStream
	Feed     *accesshttp.Feed
	DB       *usecase.DB
	Auth     *accesshttp.Authenticator
	Handler  *accesshttp.Handler
	useMongo bool
}

// NewContainer creates an empty container for cfg.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Container{Config: cfg, Logger: log}
}

// Initialize connects the configured backends and builds the access DB
// over schema. Partially opened connections are released by Close.
func (c *Container) Initialize(ctx context.Context, schema *model.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	store, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	c.Store = store

	c.Bus = eventbus.NewEventBus(c.Logger)
	if c.Config.AuditEnabled() {
		if err := c.openAudit(ctx); err != nil {
			return err
		}
		c.Audit.Subscribe(c.Bus)
	}
	c.Feed = accesshttp.NewFeed(c.Logger)
	c.Feed.Subscribe(c.Bus)

	validator, err := validation.NewCELValidator(schema, validation.WithLogger(c.Logger))
	if err != nil {
		return fmt.Errorf("failed to compile document rules: %w", err)
	}
	order, err := c.Config.DefaultOrder()
	if err != nil {
		return err
	}
	c.DB, err = usecase.NewDB(store, schema,
		usecase.WithValidator(validator),
		usecase.WithPublisher(c.Bus),
		usecase.WithLogger(c.Logger),
		usecase.WithDefaultOrder(order),
		usecase.WithFinalBatchFactor(c.Config.Pagination.FinalBatchFactor),
	)
	if err != nil {
		return fmt.Errorf("failed to create access layer: %w", err)
	}

	c.Auth = accesshttp.NewAuthenticator(c.Config.JWT.SecretKey, c.Config.JWT.Issuer)
	opts := []accesshttp.HandlerOption{accesshttp.WithHandlerLogger(c.Logger)}
	if c.Audit != nil {
		opts = append(opts, accesshttp.WithAuditReader(c.Audit))
	}
	c.Handler = accesshttp.NewHandler(c.DB, opts...)
	return nil
}

func (c *Container) openStore(ctx context.Context) (repository.Store, error) {
	if c.Config.UseMemoryStore() {
		c.Logger.Warn("MONGODB_URI not set, documents are kept in memory")
		return memory.NewStore(memory.WithLogger(c.Logger)), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(c.Config.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	c.MongoClient = client
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := mongodb.NewStore(client.Database(c.Config.Mongo.Database),
		mongodb.WithCollection(c.Config.Mongo.Collection),
		mongodb.WithLogger(c.Logger),
	)
	if err := store.EnsureIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to create document indexes: %w", err)
	}
	c.useMongo = true
	c.Logger.Infof("MongoDB store ready on %s.%s", c.Config.Mongo.Database, c.Config.Mongo.Collection)
	return store, nil
}

func (c *Container) openAudit(ctx context.Context) error {
	c.RedisClient = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.RedisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	c.Audit = auditredis.NewAuditStream(c.RedisClient,
		auditredis.WithPrefix(c.Config.Audit.StreamPrefix),
		auditredis.WithMaxLen(c.Config.Audit.StreamMaxLen),
		auditredis.WithLogger(c.Logger),
	)
	c.Logger.Infof("audit streams enabled on %s", c.Config.Redis.Addr)
	return nil
}

// RegisterRoutes mounts the protected API under /v1 and the mutation feed
// under /v1/ws.
func (c *Container) RegisterRoutes(app *fiber.App) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v1 := app.Group("/v1", c.Auth.Protect())
	c.Handler.RegisterRoutes(v1)
	c.Feed.RegisterRoutes(v1)
}

// HealthCheck pings every connected backend.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MongoClient != nil {
		if err := c.MongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	return nil
}

// Backends names the active store and audit backends.
func (c *Container) Backends() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string]string{"store": "memory", "audit": "disabled"}
	if c.useMongo {
		out["store"] = "mongodb"
	}
	if c.Audit != nil {
		out["audit"] = "redis"
	}
	return out
}

// Close detaches the audit subscribers from the bus, then releases
// every connection, newest first.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Bus != nil {
		for _, eventType := range eventbus.MutationEventTypes {
			c.Bus.Unsubscribe(eventType)
		}
	}
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis: %w", err))
		}
		c.RedisClient = nil
	}
	if c.MongoClient != nil {
		if err := c.MongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect MongoDB: %w", err))
		}
		c.MongoClient = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
