package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/domain"
	"pfp-quiz-service/internal/infra/memory"
	pgstore "pfp-quiz-service/internal/infra/postgres"
	pgmigrations "pfp-quiz-service/internal/infra/postgres/migrations"
	infraredis "pfp-quiz-service/internal/infra/redis"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewProfileLoader(pool)
	for mode, profiles := range memory.MockPools(8) {
		if err := loader.SaveProfiles(ctx, mode, profiles); err != nil {
			t.Fatalf("seed %s: %v", mode, err)
		}
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	sched := clock.NewManual(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	profiles := infraredis.NewProfileRepository(redisClient, loader, 5*time.Minute)
	players := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewGameService(
		memory.NewMockIdentityProvider(),
		pgstore.NewKVStore(pool),
		app.NewPoolQuestionSource(profiles, 1),
		players,
		app.GameServiceOptions{Scheduler: sched, StoreTimeout: 5 * time.Second},
	)

	pictures := &pictureLog{}
	c, _, err := service.SignIn(ctx, "77", pictures)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if online, err := players.Online(ctx, 77); err != nil || !online {
		t.Fatalf("expected presence marker, online=%v err=%v", online, err)
	}

	q, err := c.StartSession(ctx, domain.ModeFollowing, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(q.Choices) != domain.ChoicesPerQuestion {
		t.Fatalf("expected %d choices, got %d", domain.ChoicesPerQuestion, len(q.Choices))
	}
	for i := 0; i < 2; i++ {
		if _, err := c.SubmitAnswer(pictures.correctUsername(t)); err != nil {
			t.Fatalf("answer %d: %v", i+1, err)
		}
		sched.Advance(2500 * time.Millisecond)
	}

	res, ok := c.Result()
	if !ok || res.SessionScore != 300 {
		t.Fatalf("expected 300 points, got %+v", res)
	}

	boards, err := service.Leaderboards(ctx, "2024-03-10", 10)
	if err != nil {
		t.Fatalf("leaderboards: %v", err)
	}
	if len(boards.Daily) != 1 || boards.Daily[0].FID != 77 || boards.Daily[0].DailyScore != 300 {
		t.Fatalf("unexpected daily board %+v", boards.Daily)
	}
	if len(boards.AllTime) != 1 || boards.AllTime[0].TotalScore != 300 {
		t.Fatalf("unexpected all-time board %+v", boards.AllTime)
	}

	// The pool was cached in redis on first use.
	cached, err := redisClient.HLen(ctx, "quiz:profiles:"+string(domain.ModeFollowing)).Result()
	if err != nil || cached != 8 {
		t.Fatalf("expected 8 cached profiles, got %d err=%v", cached, err)
	}

	service.SignOut(77, c)
	if online, _ := players.Online(ctx, 77); online {
		t.Fatalf("expected presence cleared after sign out")
	}
}

func TestKVStoresAgainstServers(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	backends := map[string]app.KVBackend{
		"postgres": pgstore.NewKVStore(pool),
		"redis":    infraredis.NewKVStore(redisClient),
	}
	for name, backend := range backends {
		alice := backend.ForOwner("1")
		bob := backend.ForOwner("2")

		for _, key := range []string{"daily:2024-03-10:1", "daily:2024-03-10:2", "daily:2024-03-1_:9", "alltime:1"} {
			if err := alice.Set(ctx, key, "{}", true); err != nil {
				t.Fatalf("%s: set %s: %v", name, key, err)
			}
		}
		if err := alice.Set(ctx, "settings", `{"theme":"base"}`, false); err != nil {
			t.Fatalf("%s: set private: %v", name, err)
		}

		keys, err := bob.List(ctx, "daily:2024-03-10:", true)
		if err != nil {
			t.Fatalf("%s: list: %v", name, err)
		}
		if strings.Join(keys, ",") != "daily:2024-03-10:1,daily:2024-03-10:2" {
			t.Fatalf("%s: unexpected keys %v", name, keys)
		}
		if _, ok, err := bob.Get(ctx, "settings", false); err != nil || ok {
			t.Fatalf("%s: private value leaked, ok=%v err=%v", name, ok, err)
		}
		if v, ok, err := alice.Get(ctx, "settings", false); err != nil || !ok || v != `{"theme":"base"}` {
			t.Fatalf("%s: private get = %q ok=%v err=%v", name, v, ok, err)
		}
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// pictureLog keeps the picture of the latest question event.
type pictureLog struct {
	mu      sync.Mutex
	picture string
}

func (l *pictureLog) OnEvent(e app.Event) {
	if q, ok := e.Payload.(app.QuestionView); ok {
		l.mu.Lock()
		l.picture = q.Picture
		l.mu.Unlock()
	}
}

// correctUsername finds the pictured profile in the seeded pool.
func (l *pictureLog) correctUsername(t *testing.T) string {
	t.Helper()
	l.mu.Lock()
	picture := l.picture
	l.mu.Unlock()
	for _, p := range memory.MockPools(8)[domain.ModeFollowing] {
		if p.AvatarURL == picture {
			return p.Username
		}
	}
	t.Fatalf("no profile matches picture %q", picture)
	return ""
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
