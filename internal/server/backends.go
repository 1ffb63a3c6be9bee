package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voicetory/apiserver/config"
	"github.com/voicetory/apiserver/internal/db"
	"github.com/voicetory/apiserver/internal/mq"
	"github.com/voicetory/apiserver/internal/services"
	"github.com/voicetory/apiserver/internal/storage"
	"github.com/voicetory/apiserver/internal/store"
)

const redisPingTimeout = 3 * time.Second

type productBackend interface {
	services.ProductRepository
	services.SaleRepository
	Ping(ctx context.Context) error
}

// Backends holds the repositories chosen for each collection. A backend that
// cannot be reached is replaced with store.Unavailable.
type Backends struct {
	Users    services.UserRepository
	Sessions services.SessionRepository
	Products productBackend

	db     *sql.DB
	redis  *redis.Client
	memory *store.MemoryStore
}

type postgresProducts struct {
	*store.ProductRepository
	*store.SaleRepository
}

// OpenBackends connects every backend the configuration names. It never fails:
// connection errors are logged and the affected collections become unavailable.
func OpenBackends(ctx context.Context, cfg config.Config) *Backends {
	b := &Backends{}

	var pgErr, redisErr error
	if cfg.Uses(config.BackendPostgres) {
		b.db, pgErr = db.Open(ctx, cfg)
		if pgErr != nil {
			log.Printf("server: postgres unavailable, serving storage errors: %v", pgErr)
		}
	}
	if cfg.Uses(config.BackendRedis) {
		b.redis, redisErr = openRedis(ctx, cfg.Redis)
		if redisErr != nil {
			log.Printf("server: redis unavailable, serving storage errors: %v", redisErr)
		}
	}
	if cfg.Uses(config.BackendMemory) {
		b.memory = store.NewMemoryStore()
	}

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if b.db != nil {
			b.Users = store.NewUserRepository(b.db)
		} else {
			b.Users = store.NewUnavailable(pgErr)
		}
	default:
		b.Users = b.memory
	}

	switch cfg.SessionBackend {
	case config.BackendPostgres:
		if b.db != nil {
			b.Sessions = store.NewSessionRepository(b.db)
		} else {
			b.Sessions = store.NewUnavailable(pgErr)
		}
	case config.BackendRedis:
		if b.redis != nil {
			b.Sessions = store.NewRedisSessionStore(b.redis)
		} else {
			b.Sessions = store.NewUnavailable(redisErr)
		}
	default:
		b.Sessions = b.memory
	}

	switch cfg.InventoryBackend {
	case config.BackendPostgres:
		if b.db != nil {
			b.Products = postgresProducts{store.NewProductRepository(b.db), store.NewSaleRepository(b.db)}
		} else {
			b.Products = store.NewUnavailable(pgErr)
		}
	case config.BackendRedis:
		if b.redis != nil {
			b.Products = store.NewRedisProductStore(b.redis)
		} else {
			b.Products = store.NewUnavailable(redisErr)
		}
	default:
		b.Products = b.memory
	}

	return b
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (b *Backends) Close() error {
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// Services is the wired service layer shared by the HTTP server and the CLI.
type Services struct {
	Users    *services.UserService
	Sessions *services.SessionService
	Ledger   *services.LedgerService
	Importer *services.ImportService

	Backends *Backends
	Archive  *storage.Storage
	Events   *mq.MQ
}

// NewServices opens the configured backends and builds the services on top.
// Object storage and the broker are optional; failing to reach them only
// disables archiving or event publishing.
func NewServices(ctx context.Context, cfg config.Config) *Services {
	backends := OpenBackends(ctx, cfg)

	sessions := services.NewSessionService(backends.Sessions, cfg.SessionSecret)
	users := services.NewUserService(backends.Users, sessions)
	ledger := services.NewLedgerService(backends.Products, backends.Products)
	importer := services.NewImportService(ledger)

	svc := &Services{
		Users:    users,
		Sessions: sessions,
		Ledger:   ledger,
		Importer: importer,
		Backends: backends,
	}

	archive, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Printf("server: object storage disabled: %v", err)
	} else if archive != nil {
		importer.ArchiveUploads(archive)
		svc.Archive = archive
	}

	events, err := mq.Open(ctx, cfg)
	if err != nil {
		log.Printf("server: inventory events disabled: %v", err)
	} else if events != nil {
		ledger.PublishEvents(events, cfg.InventoryEventsChannel)
		svc.Events = events
	}

	return svc
}

func (s *Services) Close() error {
	if s.Events != nil {
		_ = s.Events.Close()
	}
	return s.Backends.Close()
}
