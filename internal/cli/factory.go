package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/config"
	httpAdapter "github.com/aretw0/sagaflow/pkg/adapters/http"
	loamAdapter "github.com/aretw0/sagaflow/pkg/adapters/loam"
	"github.com/aretw0/sagaflow/pkg/adapters/process"
	redisAdapter "github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/observability"
	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
	"github.com/aretw0/sagaflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Stack is an engine with the infrastructure wired around it by configuration.
type Stack struct {
	Engine   *sagaflow.Engine
	Metrics  *observability.Metrics
	Streams  *httpAdapter.StreamManager
	Consumer *redisAdapter.Consumer // nil unless an inbound stream is configured

	client *backend.Client
}

// Close releases the Redis connection, if any.
func (s *Stack) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// BuildStack creates an engine from cfg: templates, metrics, live streams and,
// when a Redis address is set, the snapshot store, locker, event stream, command
// stream and inbound consumer. Commands listed in cfg.Commands run as local
// programs ahead of the Redis command stream.
func BuildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	stack := &Stack{
		Metrics: observability.New(),
		Streams: httpAdapter.NewStreamManager(logger),
	}

	opts := []sagaflow.Option{
		sagaflow.WithLogger(logger),
		sagaflow.WithLifecycleHooks(stack.Metrics.Hooks()),
		sagaflow.WithLifecycleHooks(debugHooks(logger)),
		sagaflow.WithEventSink(stack.Streams),
	}
	if cfg.AsyncDispatch {
		opts = append(opts, sagaflow.WithAsyncDispatch())
	}

	var bus ports.CommandBus
	if cfg.RedisEnabled() {
		client := redisAdapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		stack.client = client

		var storeOpts []redisAdapter.Option
		if cfg.Redis.TTL > 0 {
			storeOpts = append(storeOpts, redisAdapter.WithTTL(cfg.Redis.TTL))
		}
		store, err := protectSnapshots(redisAdapter.NewFromClient(client, storeOpts...), cfg.Snapshot)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		opts = append(opts,
			sagaflow.WithSnapshotStore(store),
			sagaflow.WithLocker(redisAdapter.NewLocker(client, "sagaflow:"), cfg.Redis.LockTTL),
			sagaflow.WithEventSink(redisAdapter.NewEventStream(client, cfg.Redis.EventStream, cfg.Redis.EventStreamLen)),
		)
		bus = redisAdapter.NewCommandStream(client, cfg.Redis.CommandPrefix)
		logger.Info("redis enabled", "addr", cfg.Redis.Addr, "event_stream", cfg.Redis.EventStream,
			"encrypted", cfg.Snapshot.EncryptionKey != "", "redacted_keys", len(cfg.Snapshot.Redact))
	} else if cfg.Snapshot.EncryptionKey != "" || len(cfg.Snapshot.Redact) > 0 {
		logger.Warn("snapshot protection ignored without a snapshot store")
	}
	if cfg.Commands != "" {
		cmds, err := process.LoadCommands(cfg.Commands)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		procOpts := []process.Option{process.WithCommands(cmds)}
		if bus != nil {
			procOpts = append(procOpts, process.WithFallback(bus))
		}
		bus = process.NewBus(procOpts...)
		logger.Info("process commands registered", "count", len(cmds))
	}
	if bus != nil {
		opts = append(opts, sagaflow.WithCommandBus(bus))
	}

	stack.Engine = sagaflow.New(opts...)

	templates, err := loadTemplates(ctx, cfg)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	if err := stack.Engine.RegisterTemplate(templates...); err != nil {
		_ = stack.Close()
		return nil, err
	}
	logger.Info("saga types registered", "types", stack.Engine.SagaTypes())

	if stack.client != nil && cfg.Redis.InboundStream != "" {
		stack.Consumer = redisAdapter.NewConsumer(stack.client,
			cfg.Redis.InboundStream, cfg.Redis.ConsumerGroup, cfg.Redis.ConsumerName,
			stack.Engine.HandleEvent, nil,
		).WithLogger(logger)
	}
	return stack, nil
}

// protectSnapshots applies redaction, then encryption, to everything written to store.
func protectSnapshots(store ports.SnapshotStore, cfg config.SnapshotConfig) (ports.SnapshotStore, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		redact, err := middleware.NewRedactionMiddleware(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.DecodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key %d: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		seal, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, seal)
	}
	return middleware.Chain(store, mws...), nil
}

// loadTemplates reads the template directory, then the Loam catalog when one is configured.
func loadTemplates(ctx context.Context, cfg config.Config) ([]*definition.Template, error) {
	var templates []*definition.Template
	if cfg.Templates != "" {
		loaded, err := definition.Load(cfg.Templates)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		templates = append(templates, loaded...)
	}
	if cfg.Catalog != "" {
		catalog, err := loamAdapter.Open(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		loaded, err := catalog.Templates(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		templates = append(templates, loaded...)
	}
	if len(templates) == 0 {
		return nil, errors.New("no saga templates found")
	}
	return templates, nil
}
