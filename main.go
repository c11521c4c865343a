package main

import (
	"flag"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

// settlementBackend is what pgStore provides: upstream rows and closed days.
type settlementBackend interface {
	settlement.SourceReader
	settlement.SettlementStore
}

// newServer wires the settlement components over backend. rdb may be nil, in
// which case nothing is cached and closes run without a distributed lock.
func newServer(db pinger, backend settlementBackend, rdb *redis.Client, cfg RedisConfig, logger logrus.FieldLogger) *server {
	sources := &cachedSources{SourceReader: backend, redis: rdb, ttl: cfg.CatalogTTL, logger: logger}
	settlements := &cachedSettlements{SettlementStore: backend, redis: rdb, ttl: cfg.HistoryTTL, logger: logger}

	var locker settlement.Locker
	if rdb != nil {
		locker = newRedisLocker(rdb, cfg.LockTTL, logger)
	}

	loader := settlement.NewLoader(sources, settlements, logger)
	return &server{
		db:      db,
		sources: sources,
		history: settlements,
		loader:  loader,
		views:   settlement.NewViews(loader),
		closer:  settlement.NewCloser(loader, settlements, locker, logger),
		logger:  logger,
		today:   time.Now,
	}
}

func main() {
	// Check for migrate command
	migrateCmd := flag.Bool("migrate", false, "Apply database migrations")
	seedDemoCmd := flag.Bool("seed-demo", false, "Seed demo payment modes and transactions (idempotent)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := newLogger(cfg.Log.Level)
	if err := registerValidators(); err != nil {
		logger.WithError(err).Fatal("failed to register validators")
	}

	if *migrateCmd {
		if err := setupDatabase(cfg.Database, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		logger.Info("migration completed successfully")
		os.Exit(0)
	}
	if *seedDemoCmd {
		db, err := openDB(cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize database")
		}
		defer db.Close()
		if err := seedDemoData(db); err != nil {
			logger.WithError(err).Fatal("seeding demo data failed")
		}
		logger.WithFields(logrus.Fields{"account": demoAccountCode, "retail": demoRetailCode}).Info("demo data seeded")
		return
	}

	// Initialize database
	db, err := openDB(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize redis; continuing without cache and close locks")
		rdb = nil
	} else {
		defer rdb.Close()
	}

	srv := newServer(db, newPGStore(db), rdb, cfg.Redis, logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	srv.routes(r)

	logger.WithField("port", cfg.Server.Port).Info("server starting")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}
}
