package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/config"
	"pfp-quiz-service/internal/infra/memory"
	pgstore "pfp-quiz-service/internal/infra/postgres"
	redisstore "pfp-quiz-service/internal/infra/redis"
	sqlitestore "pfp-quiz-service/internal/infra/sqlite"
	transport "pfp-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Server.Verbose = true
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := opts.port
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service, cleanup, err := buildService(ctx, cfg, clock.NewReal())
	if err != nil {
		return err
	}
	defer cleanup()

	routerOpts := transport.RouterOptions{
		Pprof:   cfg.Server.Pprof,
		Verbose: cfg.Server.Verbose,
		// Refresh presence well inside the marker TTL.
		PresenceRefresh: config.TTLDuration(cfg.Redis.TTL, 10*time.Minute) / 3,
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, routerOpts),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting pfp quiz service on :%s (store=%s, profiles=%s)", finalPort, cfg.Store.Backend, cfg.Profiles.Source)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires the configured store, profile source and player registry.
// The returned cleanup closes every connection opened here.
func buildService(ctx context.Context, cfg config.Config, sched clock.Scheduler) (*app.GameService, func(), error) {
	if err := app.CheckLevelTable(app.Levels); err != nil {
		return nil, func() {}, fmt.Errorf("level table: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app.GameService, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)
	}

	var backend app.KVBackend
	switch cfg.Store.Backend {
	case config.BackendRedis:
		if redisClient == nil {
			return fail(fmt.Errorf("store backend redis requires redis.addr"))
		}
		backend = redisstore.NewKVStore(redisClient)
	case config.BackendPostgres:
		if pool == nil {
			return fail(fmt.Errorf("store backend postgres requires postgres.url"))
		}
		backend = pgstore.NewKVStore(pool)
	case config.BackendSQLite:
		store, err := sqlitestore.NewKVStore(cfg.Store.SQLitePath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = store.Close() })
		backend = store
	default:
		backend = memory.NewKVStore()
	}

	questions, err := buildQuestionSource(cfg, redisClient, pool)
	if err != nil {
		return fail(err)
	}

	var players app.ControllerRepository
	if redisClient != nil {
		players = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		players = memory.NewSessionStore()
	}

	controllerCfg, err := controllerConfig(cfg)
	if err != nil {
		return fail(err)
	}

	service := app.NewGameService(memory.NewMockIdentityProvider(), backend, questions, players, app.GameServiceOptions{
		Scheduler:    sched,
		Controller:   controllerCfg,
		StoreTimeout: config.TTLDuration(cfg.Store.Timeout, 3*time.Second),
	})
	return service, cleanup, nil
}

func buildQuestionSource(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) (app.QuestionSource, error) {
	var loader memory.ProfileLoader
	switch cfg.Profiles.Source {
	case config.ProfilesMock:
		loader = memory.NewStaticProfileLoader(memory.MockPools(cfg.Profiles.MockCount))
	case config.ProfilesPostgres:
		if pool == nil {
			return nil, fmt.Errorf("profile source postgres requires postgres.url")
		}
		loader = pgstore.NewProfileLoader(pool)
	default:
		return app.NewRandomQuestionSource(cfg.Profiles.Seed), nil
	}

	profilesTTL := config.TTLDuration(cfg.Profiles.TTL, 10*time.Minute)
	var repo app.ProfileRepository
	if redisClient != nil {
		repo = redisstore.NewProfileRepository(redisClient, loader, profilesTTL)
	} else {
		repo = memory.NewProfileRepository(loader, profilesTTL)
	}
	return app.NewPoolQuestionSource(repo, cfg.Profiles.Seed), nil
}

func controllerConfig(cfg config.Config) (app.ControllerConfig, error) {
	loc, err := cfg.Location()
	if err != nil {
		return app.ControllerConfig{}, err
	}
	defaults := app.DefaultControllerConfig()
	return app.ControllerConfig{
		Tick:              config.TTLDuration(cfg.Game.Tick, defaults.Tick),
		FeedbackDelay:     config.TTLDuration(cfg.Game.FeedbackDelay, defaults.FeedbackDelay),
		LeaderboardLimit:  cfg.Game.LeaderboardLimit,
		Location:          loc,
		UserRecordsShared: cfg.Store.UserRecordsShared,
		TimerChoices:      cfg.Game.TimerChoices,
	}, nil
}
