package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/eventlog"
	"trivia-service/internal/game"
	"trivia-service/internal/infra/blob"
	"trivia-service/internal/infra/memory"
	pgcatalog "trivia-service/internal/infra/postgres"
	redisinfra "trivia-service/internal/infra/redis"
	transport "trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	clock := clockwork.NewRealClock()

	// Document store: Redis when configured, in-memory otherwise. Both back
	// sessions, answers, event counters and events.
	var (
		sessions game.SessionStore
		answers  game.AnswerStore
		events   eventlog.Store
	)
	if redisClient != nil {
		store := redisinfra.NewStore(redisClient)
		sessions, answers, events = store, store, store
	} else {
		store := memory.NewStore()
		sessions, answers, events = store, store, store
	}

	eventLog := eventlog.New(events, clock)
	engine := game.NewEngine(game.Config{
		Sessions:        sessions,
		Answers:         answers,
		Events:          eventLog,
		Clock:           clock,
		QuestionWindow:  config.SecondsDuration(cfg.Game.QuestionSeconds, 30*time.Second),
		ScoreboardPause: config.SecondsDuration(cfg.Game.ScoreboardSeconds, 5*time.Second),
	})

	// Question catalog: Postgres-backed when configured, sample data
	// otherwise; cached in Redis when available.
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog transport.QuestionCatalog
	switch {
	case pool != nil && redisClient != nil:
		catalog = redisinfra.NewCatalog(redisClient, pgcatalog.NewQuestionSetLoader(pool), catalogTTL)
	case pool != nil:
		catalog = memory.NewCatalog(pgcatalog.NewQuestionSetLoader(pool), catalogTTL)
	default:
		catalog = memory.NewCatalog(memory.NewStaticLoader(sampleQuestionSets()), catalogTTL)
	}

	var images transport.ImageStore
	if cfg.Media.Dir != "" {
		images = blob.NewStore(cfg.Media.Dir, cfg.Media.BaseURL)
	}

	handler := transport.NewHandler(engine, eventLog, catalog, images, cfg.Admin.Key)
	wsHandler := transport.NewWSHandler(engine, eventLog)
	router := handler.Router(wsHandler, cfg.Media.Dir, cfg.CORS.Origins, promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestionSets provides minimal demo content; a Postgres catalog
// replaces this in production.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"demo": {
			ID: "demo",
			Questions: []domain.Question{
				{
					ID:           "q1",
					Text:         "What is 2 + 2?",
					Options:      []string{"3", "4", "5"},
					CorrectIndex: 1,
				},
				{
					ID:           "q2",
					Text:         "Which planet is known as the Red Planet?",
					Options:      []string{"Venus", "Jupiter", "Mars"},
					CorrectIndex: 2,
				},
			},
			BonusQuestion: domain.Question{
				ID:           "bonus",
				Text:         "How many continents are there?",
				Options:      []string{"five", "six", "seven"},
				CorrectIndex: 2,
			},
		},
	}
}
