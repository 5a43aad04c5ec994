package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"marketsync/internal/cache"
	"marketsync/internal/config"
	cronrunner "marketsync/internal/cron"
	"marketsync/internal/db"
	"marketsync/internal/engine"
	"marketsync/internal/gateway"
	"marketsync/internal/journal"
	"marketsync/internal/logger"
	"marketsync/internal/mutation"
	"marketsync/internal/realtime"
	"marketsync/internal/session"
	"marketsync/internal/storage"
)

func main() {
	cfgPath := os.Getenv("MS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg.Session)
	if err != nil {
		logger.Fatal("storage open failed", zap.Error(err))
	}

	sessions := session.NewStore(ctx, store, logger)
	if st := sessions.Snapshot(); st.Authenticated {
		logger.Info("session rehydrated", zap.String("user_id", st.UserID))
	}

	engineHTTP := &http.Client{Timeout: cfg.Engine.Timeout}
	engineClient := engine.NewClient(engineHTTP, cfg.Engine.BaseURL)

	registry := cache.New(cfg.Cache, sessions.Authenticated, logger)
	pipeline := &mutation.Pipeline{Engine: engineClient, Cache: registry, Logger: logger}

	var sink realtime.Sink
	var journalDB *db.DB
	if cfg.Journal.Enabled && cfg.Journal.DSN != "" {
		journalDB, err = db.Open(cfg.Journal)
		if err != nil {
			logger.Fatal("journal db open failed", zap.Error(err))
		}
		defer db.Close(journalDB)
		if err := db.AutoMigrate(journalDB); err != nil {
			logger.Fatal("journal auto-migrate failed", zap.Error(err))
		}
		sink = &journal.Recorder{Repo: journal.New(journalDB.Gorm), Logger: logger}
	}

	router := &realtime.Router{Cache: registry, Sink: sink, Logger: logger}
	channel := realtime.New(realtime.Options{
		URL: wsURL(cfg.Engine),
		Token: func() (string, error) {
			return session.BuildToken(sessions.Snapshot().Identity, time.Now())
		},
		PingInterval: cfg.Realtime.PingInterval,
		PongTimeout:  cfg.Realtime.PongTimeout,
		BackoffMin:   cfg.Realtime.BackoffMin,
		BackoffMax:   cfg.Realtime.BackoffMax,
		Logger:       logger,
		OnEvent:      router.Handle,
	})

	// Keep the user topic in step with the session: subscribe on login,
	// drop on logout.
	var userMu sync.Mutex
	prevUser := ""
	if st := sessions.Snapshot(); st.Authenticated {
		prevUser = st.UserID
		channel.Subscribe(ctx, realtime.UserChannel(prevUser))
	}
	unsubscribe := sessions.Subscribe(func(st session.State) {
		userMu.Lock()
		defer userMu.Unlock()
		switch {
		case st.Authenticated && st.UserID != prevUser:
			if prevUser != "" {
				channel.Unsubscribe(ctx, realtime.UserChannel(prevUser))
			}
			prevUser = st.UserID
			channel.Subscribe(ctx, realtime.UserChannel(prevUser))
		case !st.Authenticated && prevUser != "":
			channel.Unsubscribe(ctx, realtime.UserChannel(prevUser))
			prevUser = ""
		}
	})
	defer unsubscribe()

	go func() {
		if err := channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("realtime channel stopped", zap.Error(err))
		}
	}()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	api := gin.New()
	api.Use(gin.Recovery())
	api.Use(corsMiddleware())

	(&gateway.HealthHandler{Channel: channel}).Register(api)
	(&gateway.SessionHandler{Sessions: sessions, Cache: registry}).Register(api)
	(&gateway.QueryHandler{Cache: registry, Engine: engineClient}).Register(api)
	(&gateway.MutationHandler{Pipeline: pipeline, Sessions: sessions, Storage: store}).Register(api)
	(&gateway.WatchHandler{Channel: channel}).Register(api)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("cache-janitor", cfg.Cron.CacheJanitor, func(context.Context) {
			if evicted := registry.Sweep(cfg.Cache.MaxIdle); evicted > 0 {
				logger.Info("cache janitor swept entries", zap.Int("evicted", evicted))
			}
		})
		if err != nil {
			logger.Warn("cron register cache janitor failed", zap.Error(err))
		}
		if journalDB != nil {
			repo := journal.New(journalDB.Gorm)
			_, err = cronRunner.Add("journal-prune", cfg.Cron.JournalPrune, func(ctx context.Context) {
				cutoff := time.Now().UTC().Add(-cfg.Journal.Retention)
				if n, err := repo.Prune(ctx, cutoff); err != nil {
					logger.Warn("journal prune failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("journal pruned", zap.Int64("rows", n))
				}
			})
			if err != nil {
				logger.Warn("cron register journal prune failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: api,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	channel.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func openStorage(cfg config.SessionConfig) (storage.Store, error) {
	if strings.EqualFold(cfg.Backend, "redis") {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return storage.NewRedisStore(client, ""), nil
	}
	return storage.NewFileStore(afero.NewOsFs(), cfg.Dir)
}

// wsURL derives the websocket endpoint from the engine host unless one is
// configured explicitly.
func wsURL(cfg config.EngineConfig) string {
	if cfg.WSURL != "" {
		return cfg.WSURL
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/ws"
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
