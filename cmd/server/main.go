package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	_ "election-system/docs"
	"election-system/internal/config"
	"election-system/internal/domain/ballot"
	"election-system/internal/domain/election"
	"election-system/internal/domain/tally"
	"election-system/internal/domain/voting"
	api "election-system/internal/http"
	"election-system/internal/metrics"
	"election-system/internal/platform/alert"
	"election-system/internal/platform/database"
	jwtpkg "election-system/internal/platform/jwt"
	"election-system/internal/repository/dynamo"
	"election-system/internal/repository/memory"
	"election-system/internal/repository/postgres"
	"election-system/internal/worker"
)

// fullReconcileEvery is how many reconcile ticks pass between recounts of every election.
const fullReconcileEvery = 12

type stores struct {
	elections election.Repository
	ballots   ballot.Repository
	tallies   tally.Repository
	audit     voting.AuditLog
	ready     api.ReadyFunc
	close     func()
}

// @title           Election System API
// @version         1.0
// @description     Election lifecycle, vote admission and live tallying with JWT auth
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	api.SetLogger(logger)
	metrics.Register()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage setup failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer st.close()

	var alerter voting.Alerter = alert.Log{Logger: logger}
	if cfg.AlertsEnabled() {
		alerter = alert.NewTelegram(cfg.AlertIdentity, cfg.TelegramBotID, cfg.TelegramChatID)
	}

	clock := election.SystemClock{}
	electionSvc := election.NewService(st.elections, clock, logger)
	ballotSvc := ballot.NewService(st.ballots, clock.Now, logger)
	engine := tally.NewEngine(st.tallies, clock.Now, logger)
	coord := voting.NewCoordinator(electionSvc, ballotSvc, engine, voting.Options{
		AdmitAttempts:  cfg.AdmitAttempts,
		AdmitBaseDelay: cfg.AdmitBaseDelay,
		TallyAttempts:  cfg.TallyAttempts,
		Alerter:        alerter,
		Audit:          st.audit,
		Logger:         logger,
	})

	voteCh := make(chan worker.VoteEvent, 100)
	go worker.NewEventWorker(voteCh, logger).Run(ctx)
	go worker.NewPhaseWorker(electionSvc, cfg.PhaseSweepInterval, logger).Run(ctx)
	go worker.NewReconcileWorker(coord, cfg.ReconcileInterval, fullReconcileEvery, logger).Run(ctx)

	router := api.NewRouter(api.Deps{
		Elections: electionSvc,
		Voting:    coord,
		JWT:       jwtpkg.NewManager(cfg.JWTSecret, cfg.JWTIssuer),
		VoteCh:    voteCh,
		Ready:     st.ready,
		VoteRate:  rate.Every(time.Minute / time.Duration(cfg.VoteRatePerMinute)),
		VoteBurst: cfg.VoteRateBurst,

		TrustProxy: cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	st := &stores{close: func() {}}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		st.elections = memory.NewElectionRepo()
		st.ballots = memory.NewBallotRepo()
		st.tallies = memory.NewTallyRepo()
		st.audit = memory.NewAuditLog()
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.DB_DSN)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		st.close = func() { _ = db.Close() }
		if err := database.EnsureSchema(ctx, db); err != nil {
			st.close()
			return nil, fmt.Errorf("schema: %w", err)
		}
		gdb, err := database.NewGorm(db)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("gorm: %w", err)
		}
		audit := postgres.NewAuditRepo(gdb)
		if err := audit.Migrate(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("audit migrate: %w", err)
		}
		st.elections = postgres.NewElectionRepo(db)
		st.ballots = postgres.NewBallotRepo(db)
		st.tallies = postgres.NewTallyRepo(db)
		st.audit = audit
		st.ready = db.PingContext
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.BallotBackend == config.BackendDynamo {
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		repo := dynamo.NewBallotRepo(client, cfg.DynamoBallotTable, logger)
		if err := repo.EnsureTable(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("dynamodb table: %w", err)
		}
		st.ballots = repo
		logger.Info("ballots stored in dynamodb", "table", cfg.DynamoBallotTable)
	}

	return st, nil
}
