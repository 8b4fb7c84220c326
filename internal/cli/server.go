package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"wellness-quiz-engine/internal/config"
	"wellness-quiz-engine/internal/flow"
	"wellness-quiz-engine/internal/infra/memory"
	pginfra "wellness-quiz-engine/internal/infra/postgres"
	redisinfra "wellness-quiz-engine/internal/infra/redis"
	"wellness-quiz-engine/internal/override"
	"wellness-quiz-engine/internal/quizdef"
	transport "wellness-quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Definition source priority: Postgres JSONB, then a YAML data dir,
	// then the built-in sample quiz.
	var source quizdef.Source
	var overrides quizdef.OverrideSource
	switch {
	case pool != nil:
		pgSource := pginfra.NewDefinitionSource(pool)
		source, overrides = pgSource, pgSource
	case cfg.Quiz.DataDir != "":
		fileSource := quizdef.NewFileSource(cfg.Quiz.DataDir)
		source, overrides = fileSource, fileSource
	default:
		static := memory.NewStaticSource(sampleQuizDocuments())
		source, overrides = static, static
	}
	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		source = redisinfra.NewDefinitionCache(redisClient, source, quizTTL)
	}
	store := quizdef.New(source, overrides, quizTTL)

	var sessions flow.SessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	cooldown := config.Duration(cfg.Quiz.Cooldown, time.Minute)
	var guard flow.InteractionGuard
	if redisClient != nil {
		guard = redisinfra.NewInteractionGuard(redisClient, cooldown)
	} else {
		guard = memory.NewInteractionGuard(cooldown)
	}

	var events flow.EventLogger = stdoutEventLogger{}
	if pool != nil {
		events = pginfra.NewEventLog(pool)
	}

	gateway := transport.NewGateway()
	controller := flow.NewController(flow.Deps{
		Definitions: store,
		Sessions:    sessions,
		Messenger:   gateway,
		Hooks:       flow.NewRegistry(),
		Guard:       guard,
		Events:      events,
		Images:      imageResolver(cfg),
		Timeout:     config.Duration(cfg.Quiz.Timeout, flow.DefaultTimeout),
	})
	wsHandler := transport.NewWSHandler(controller, store, gateway)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz engine on :%s", finalPort)
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

func imageResolver(cfg config.Config) flow.ImageResolver {
	var local, remote flow.ImageResolver
	if cfg.Images.Dir != "" {
		local = flow.NewLocalImages(cfg.Images.Dir)
	}
	if cfg.Images.BaseURL != "" {
		remote = flow.NewRemoteImages(cfg.Images.BaseURL, cfg.Images.Probe)
	}
	switch {
	case local != nil && remote != nil:
		if cfg.Images.Order == "remote-first" {
			return flow.NewChainResolver(remote, local)
		}
		return flow.NewChainResolver(local, remote)
	case local != nil:
		return local
	case remote != nil:
		return remote
	default:
		return nil
	}
}

// stdoutEventLogger is the no-database event sink.
type stdoutEventLogger struct{}

func (stdoutEventLogger) QuizStarted(_ context.Context, userID, quiz string) {
	log.Printf("event: quiz_start quiz=%s user=%s", quiz, userID)
}

// sampleQuizDocuments provides a built-in quiz so the engine runs without a
// database or data dir; swap in Postgres or a YAML dir in production.
func sampleQuizDocuments() map[string]override.Document {
	question := func(id, text string) override.Document {
		return override.Document{
			"id":   id,
			"text": text,
			"options": []any{
				override.Document{"key": "rarely", "text": "Rarely", "score": 0},
				override.Document{"key": "sometimes", "text": "Sometimes", "score": 1, "tags": []any{"watchlist"}},
				override.Document{"key": "often", "text": "Often", "score": 2, "tags": []any{"attention"}},
				override.Document{"key": "daily", "text": "Every day", "score": 3, "tags": []any{"attention", "priority"}},
			},
		}
	}
	return map[string]override.Document{
		"energy": {
			"title": "Energy check",
			"questions": []any{
				question("q1", "How often do you wake up tired?"),
				question("q2", "How often do you need caffeine to get through the morning?"),
				question("q3", "How often does your focus dip in the afternoon?"),
				question("q4", "How often do you skip exercise because you feel drained?"),
				question("q5", "How often do you feel exhausted by the evening?"),
			},
			"result": override.Document{
				"thresholds": []any{
					override.Document{"min": 0, "max": 5, "label": "Energized",
						"advice": "Your energy looks stable. Keep your sleep and movement routine going.",
						"tags":   []any{"energy_norm"}},
					override.Document{"min": 6, "max": 10, "label": "Mild fatigue",
						"advice": "Aim for lights out before 23:00 and a 30-minute daily walk.",
						"tags":   []any{"energy_light"}},
					override.Document{"min": 11, "max": 15, "label": "Marked fatigue",
						"advice": "Prioritize rest this week and watch hydration: 30-35 ml of water per kg.",
						"tags":   []any{"energy_high"}},
				},
			},
		},
	}
}
