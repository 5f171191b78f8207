package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/lifecycle-service/internal/api/http"
	"github.com/spec-kit/lifecycle-service/internal/auth"
	"github.com/spec-kit/lifecycle-service/internal/cache"
	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/directory"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/events"
	"github.com/spec-kit/lifecycle-service/internal/fetch"
	"github.com/spec-kit/lifecycle-service/internal/notify"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/orchestrate"
	"github.com/spec-kit/lifecycle-service/internal/persistence"
	"github.com/spec-kit/lifecycle-service/internal/repository"
	"github.com/spec-kit/lifecycle-service/internal/resolve"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
	"github.com/spec-kit/lifecycle-service/internal/worker"
)

const usage = `usage: jml <command> [flags]

commands:
  batch       fetch all actionable termination tickets and run them
  terminate   run the phase plan for one employee directly
  ticket      run the phase plan for one ticket by id
  serve       start the operator portal HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "batch":
		code = runBatch(ctx, cfg, logger, os.Args[2:])
	case "terminate":
		code = runTerminate(ctx, cfg, logger, os.Args[2:])
	case "ticket":
		code = runTicket(ctx, cfg, logger, os.Args[2:])
	case "serve":
		code = runServe(ctx, cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

// app holds the wired pipeline shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	plan       config.PhasePlan
	source     *ticketsource.Client
	dir        *directory.Client
	resolver   *resolve.Resolver
	dispatcher *events.Dispatcher
	runs       repository.RunRepository
	runner     *worker.BatchRunner
	orch       *orchestrate.Orchestrator
	pool       *pgxpool.Pool
	redis      *redis.Client
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, dryRun bool) (*app, error) {
	plan, err := config.LoadPhasePlan(cfg.Orchestrator.PhasePlanPath)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	tickets := cache.NewTicketCache()
	source := ticketsource.NewClient(cfg.TicketSource, tickets, logger)
	dir := directory.NewClient(cfg.Directory, metrics, logger)
	resolver := resolve.NewResolver(cfg.Directory.OrgDomain, logger)
	dispatcher := events.NewDispatcher(0, logger)

	pool, err := persistence.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	var runs repository.RunRepository
	if pool != nil {
		runs = repository.NewPostgresRunRepository(pool, logger)
	} else {
		runs = repository.NewMemoryRunRepository()
	}

	redisClient, err := persistence.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// Notification streaming is best effort; run without it.
		logger.Warn("redis unavailable, stream notifications disabled", zap.Error(err))
		redisClient = nil
	}

	actions := map[domain.PhaseName]orchestrate.PhaseAction{}
	if spec, ok := plan.Spec(domain.PhaseDirectory); ok {
		actions[domain.PhaseDirectory] = orchestrate.NewDirectoryPhase(dir, spec.Groups, logger)
	}

	orch := orchestrate.NewOrchestrator(orchestrate.Deps{
		Plan:         plan,
		Actions:      actions,
		Resolver:     resolver,
		Directory:    dir,
		Source:       source,
		Notifier:     notify.NewNotifier(cfg.Notification, redisClient, logger),
		Events:       dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		PhaseTimeout: cfg.Orchestrator.PhaseTimeout(),
		DryRun:       dryRun,
	})

	fetcher := fetch.NewFetcher(source, cfg.Fetch, metrics, logger)
	runner := worker.NewBatchRunner(fetcher, resolver, orch, runs, dispatcher, dir,
		cfg.TicketSource, cfg.Orchestrator.RunConcurrency, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		plan:       plan,
		source:     source,
		dir:        dir,
		resolver:   resolver,
		dispatcher: dispatcher,
		runs:       runs,
		runner:     runner,
		orch:       orch,
		pool:       pool,
		redis:      redisClient,
	}, nil
}

func (a *app) close() {
	a.dispatcher.Close()
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func runBatch(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) int {
	flags := pflag.NewFlagSet("batch", pflag.ExitOnError)
	dryRun := flags.Bool("dry-run", false, "record what would happen without executing actions")
	_ = flags.Parse(args)

	a, err := buildApp(ctx, cfg, logger, *dryRun)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.close()

	report, err := a.runner.RunBatch(ctx)
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		return 1
	}
	fmt.Printf("tickets=%d executed=%d succeeded=%d failed=%d\n",
		report.TicketsFetched, report.RunsExecuted, report.RunsSucceeded, report.RunsFailed)
	if report.RunsFailed > 0 {
		return 1
	}
	return 0
}

func runTerminate(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) int {
	flags := pflag.NewFlagSet("terminate", pflag.ExitOnError)
	employee := flags.String("employee", "", "employee email or employee number (required)")
	manager := flags.String("manager", "", "manager email for data-transfer phases")
	phases := flags.StringSlice("phases", nil, "restrict the run to these phases")
	dryRun := flags.Bool("dry-run", false, "record what would happen without executing actions")
	_ = flags.Parse(args)

	if *employee == "" {
		fmt.Fprintln(os.Stderr, "terminate: --employee is required")
		return 2
	}

	a, err := buildApp(ctx, cfg, logger, *dryRun)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.close()

	if len(*phases) > 0 {
		names := make([]domain.PhaseName, 0, len(*phases))
		for _, name := range *phases {
			names = append(names, domain.PhaseName(strings.TrimSpace(name)))
		}
		a.plan = a.plan.Subset(names)
		if len(a.plan.Phases) == 0 {
			fmt.Fprintln(os.Stderr, "terminate: no known phases selected")
			return 2
		}
		// Rebuild against the narrowed plan.
		actions := map[domain.PhaseName]orchestrate.PhaseAction{}
		if spec, ok := a.plan.Spec(domain.PhaseDirectory); ok {
			actions[domain.PhaseDirectory] = orchestrate.NewDirectoryPhase(a.dir, spec.Groups, logger)
		}
		a.orch = orchestrate.NewOrchestrator(orchestrate.Deps{
			Plan:         a.plan,
			Actions:      actions,
			Resolver:     a.resolver,
			Directory:    a.dir,
			Notifier:     nil,
			Events:       a.dispatcher,
			Metrics:      a.metrics,
			Logger:       logger,
			PhaseTimeout: cfg.Orchestrator.PhaseTimeout(),
			DryRun:       *dryRun,
		})
	}

	record := &domain.TerminationRecord{
		EmployeeIdentity: a.resolver.ResolveValue(*employee, nil),
		ManagerIdentity:  domain.UnresolvedIdentity(),
		Extras:           map[string]string{},
	}
	if *manager != "" {
		record.ManagerIdentity = a.resolver.ResolveValue(*manager, nil)
	}

	outcome := a.orch.Run(ctx, record)
	if err := a.runs.SaveOutcome(ctx, outcome); err != nil {
		logger.Warn("failed to persist run outcome", zap.Error(err))
	}
	printOutcome(outcome)
	if !outcome.OverallSuccess {
		return 1
	}
	return 0
}

func runTicket(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) int {
	flags := pflag.NewFlagSet("ticket", pflag.ExitOnError)
	id := flags.String("id", "", "ticket id (required)")
	dryRun := flags.Bool("dry-run", false, "record what would happen without executing actions")
	_ = flags.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "ticket: --id is required")
		return 2
	}

	a, err := buildApp(ctx, cfg, logger, *dryRun)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.close()

	outcome, err := a.runner.RunOne(ctx, a.source, *id)
	if err != nil {
		logger.Error("ticket run failed", zap.String("ticket_id", *id), zap.Error(err))
		return 1
	}
	printOutcome(outcome)
	if !outcome.OverallSuccess {
		return 1
	}
	return 0
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) int {
	a, err := buildApp(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.close()

	tokens := auth.NewTokenManager(cfg.Auth)
	handlers := apihttp.NewHandlers(cfg, tokens, a.runner, a.source, a.runs, a.metrics, logger)
	server := apihttp.NewServer(cfg, handlers, tokens, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.App.Addr())
	}()
	logger.Info("portal listening", zap.String("addr", cfg.App.Addr()))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}
	return 0
}

func printOutcome(outcome *domain.TerminationOutcome) {
	status := "SUCCESS"
	if !outcome.OverallSuccess {
		status = "FAILED"
	}
	fmt.Printf("run %s [%s] employee=%s duration=%s\n",
		outcome.RunID, status, outcome.EmployeeIdentity.Email(), outcome.Duration.Round(time.Millisecond))
	for _, line := range outcome.Summary() {
		fmt.Println("  " + line)
	}
}
