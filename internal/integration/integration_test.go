package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
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

	"wellness-quiz-engine/internal/callback"
	"wellness-quiz-engine/internal/flow"
	pgsource "wellness-quiz-engine/internal/infra/postgres"
	pgmigrations "wellness-quiz-engine/internal/infra/postgres/migrations"
	infraredis "wellness-quiz-engine/internal/infra/redis"
	"wellness-quiz-engine/internal/override"
	"wellness-quiz-engine/internal/quizdef"
)

func TestQuizRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDefinitions(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	source := pgsource.NewDefinitionSource(pool)
	cached := infraredis.NewDefinitionCache(redisClient, source, 5*time.Minute)
	defs := quizdef.New(cached, source, 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, time.Hour)
	msgr := &recordingMessenger{}

	controller := flow.NewController(flow.Deps{
		Definitions: defs,
		Sessions:    sessions,
		Messenger:   msgr,
		Guard:       infraredis.NewInteractionGuard(redisClient, time.Minute),
		Events:      pgsource.NewEventLog(pool),
	})

	if err := controller.Start(ctx, "u1", "energy"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(msgr.last(), "Energy check v2") {
		t.Fatalf("expected override title in render, got %q", msgr.last())
	}

	for i := 1; i <= 5; i++ {
		state, ok, err := sessions.Get(ctx, "u1")
		if err != nil || !ok {
			t.Fatalf("session before q%d: ok=%v err=%v", i, ok, err)
		}
		token, err := callback.AnswerToken("energy", fmt.Sprintf("q%d", i), "often")
		if err != nil {
			t.Fatalf("token q%d: %v", i, err)
		}
		ev := flow.Event{UserID: "u1", MessageID: state.MessageID, Token: token}
		if err := controller.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("answer q%d: %v", i, err)
		}
	}

	summary := msgr.last()
	if !strings.Contains(summary, "Score: 10") || !strings.Contains(summary, "Result: Fatigued") {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if _, ok, _ := sessions.Get(ctx, "u1"); ok {
		t.Fatalf("session must be cleared after completion")
	}

	var events int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_events WHERE user_id='u1' AND quiz='energy' AND kind='quiz_start'`).Scan(&events)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected one quiz_start event, got %d", events)
	}

	// A second immediate start hits the guard cooldown.
	if err := controller.Start(ctx, "u1", "energy"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !strings.Contains(msgr.last(), "Try again in") {
		t.Fatalf("expected cooldown notice, got %q", msgr.last())
	}
}

type recordingMessenger struct {
	seq  int
	sent []string
}

func (m *recordingMessenger) SendText(_ context.Context, _ string, text string, _ []flow.Button) (string, error) {
	m.seq++
	m.sent = append(m.sent, text)
	return fmt.Sprintf("m%d", m.seq), nil
}

func (m *recordingMessenger) SendPhoto(_ context.Context, _ string, _, caption string, _ []flow.Button) (string, error) {
	m.seq++
	m.sent = append(m.sent, caption)
	return fmt.Sprintf("m%d", m.seq), nil
}

func (m *recordingMessenger) DeleteMessage(_ context.Context, _, _ string) error {
	return nil
}

func (m *recordingMessenger) last() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
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

func seedDefinitions(t *testing.T, ctx context.Context, dsn string) {
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

	base, err := json.Marshal(energyDocument())
	if err != nil {
		t.Fatalf("marshal definition: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quiz_definitions (name, data) VALUES (?, ?::jsonb) ON CONFLICT (name) DO UPDATE SET data=EXCLUDED.data`,
		"energy", string(base)); err != nil {
		t.Fatalf("insert definition: %v", err)
	}

	patch, err := json.Marshal(override.Document{"title": "Energy check v2"})
	if err != nil {
		t.Fatalf("marshal override: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quiz_overrides (name, data) VALUES (?, ?::jsonb) ON CONFLICT (name) DO UPDATE SET data=EXCLUDED.data`,
		"energy", string(patch)); err != nil {
		t.Fatalf("insert override: %v", err)
	}
}

func energyDocument() override.Document {
	questions := make([]any, 0, 5)
	for i := 1; i <= 5; i++ {
		questions = append(questions, override.Document{
			"id":   fmt.Sprintf("q%d", i),
			"text": fmt.Sprintf("Prompt %d", i),
			"options": []any{
				override.Document{"key": "rarely", "text": "Rarely", "score": 0},
				override.Document{"key": "often", "text": "Often", "score": 2},
			},
		})
	}
	return override.Document{
		"title":     "Energy check",
		"questions": questions,
		"result": override.Document{
			"thresholds": []any{
				override.Document{"min": 0, "max": 4, "label": "Energized", "advice": "keep it up"},
				override.Document{"min": 5, "max": 10, "label": "Fatigued", "advice": "get some rest"},
			},
		},
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
