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

	"contest-service/internal/app"
	"contest-service/internal/config"
	"contest-service/internal/infra/memory"
	pgstore "contest-service/internal/infra/postgres"
	redisstore "contest-service/internal/infra/redis"
	transport "contest-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the contest server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.ContestLoader = memory.NewStaticContestLoader(sampleContests())
	if pool != nil {
		loader = pgstore.NewContestLoader(pool)
	}

	contestTTL := config.TTLDuration(cfg.Contest.TTL, 10*time.Minute)
	var contests app.ContestRepository
	if redisClient != nil {
		contests = redisstore.NewContestRepository(redisClient, loader, contestTTL)
	} else {
		contests = memory.NewContestRepository(loader, contestTTL)
	}

	var participations app.ParticipationRepository
	if cfg.Postgres.URL != "" {
		db := openBunDB(cfg.Postgres.URL)
		defer db.Close()
		participations = pgstore.NewParticipationStore(db)
	} else {
		participations = memory.NewParticipationStore()
	}

	directory := memory.NewUserDirectory()
	service := app.NewContestService(contests, participations, directory)
	if redisClient != nil {
		leaderboardTTL := config.TTLDuration(cfg.Leaderboard.TTL, time.Minute)
		service = service.WithLeaderboardCache(redisstore.NewLeaderboardCache(redisClient, leaderboardTTL))
	}

	identity := transport.NewHeaderIdentity()
	handler := transport.NewHandler(service, identity, directory)
	wsHandler := transport.NewWSHandler(service, identity)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting contest service on :%s", finalPort)
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
