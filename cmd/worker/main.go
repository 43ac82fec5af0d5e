package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/guildq/internal/config"
	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/flow"
	"github.com/SirClappington/guildq/internal/logging"
	"github.com/SirClappington/guildq/internal/queue"
	"github.com/SirClappington/guildq/internal/stagehttp"
	"github.com/SirClappington/guildq/internal/storage"
	"github.com/SirClappington/guildq/internal/worker"
)

func main() {
	cmd := &cli.Command{
		Name:  "guildq-worker",
		Usage: "Run stage workers for access flows",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "queue",
				Aliases: []string{"q"},
				Usage:   "Queue to consume (repeatable); defaults to every queue with a stage endpoint",
				Sources: cli.EnvVars("WORKER_QUEUES"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Workers per queue",
				Value:   1,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Worker ID prefix (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, command *cli.Command) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if l := command.String("log-level"); l != "" {
		level = l
	}
	zl, err := logging.New(cfg.AppEnv, level)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	prefix := command.String("worker-id")
	if prefix == "" {
		prefix = "worker-" + uuid.NewString()[:8]
	}
	logger := logging.With(logging.FromZap(zl), "process", prefix)

	names, err := queueNames(command.StringSlice("queue"), cfg.StageEndpoints)
	if err != nil {
		return err
	}
	concurrency := command.Int("concurrency")
	if concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	queues, err := queue.NewRegistry(store, cfg.QueuePriorities)
	if err != nil {
		return err
	}
	flows := flow.NewStore(store, cfg.FlowTTL)
	client := stagehttp.New(cfg.StageTimeout)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		fn := client.Func(name, cfg.StageEndpoints[string(name)])
		for i := 0; i < concurrency; i++ {
			w, err := worker.New(queues, flows, name, fn, worker.Options{
				ID:               fmt.Sprintf("%s-%s-%d", prefix, name, i),
				LockTime:         cfg.LockTimeFor(name),
				WaitTimeout:      cfg.WaitTimeout,
				RetryDelay:       cfg.RetryDelay,
				DeleteOnTerminal: cfg.DeleteTerminalFlows,
				Logger:           logger,
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	logger.Info("workers started", "queues", names, "concurrency", concurrency)
	err = g.Wait()
	logger.Info("workers stopped")
	return err
}

// queueNames resolves the queues to consume. Each one needs a stage endpoint.
func queueNames(requested []string, endpoints map[string]string) ([]domain.QueueName, error) {
	if len(requested) == 0 {
		for _, name := range domain.QueueNames {
			if _, ok := endpoints[string(name)]; ok {
				requested = append(requested, string(name))
			}
		}
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("no queues to consume: set --queue and STAGE_ENDPOINTS")
	}
	out := make([]domain.QueueName, 0, len(requested))
	for _, raw := range requested {
		name, err := domain.ParseQueueName(raw)
		if err != nil {
			return nil, err
		}
		if endpoints[raw] == "" {
			return nil, fmt.Errorf("no stage endpoint for queue %s", name)
		}
		out = append(out, name)
	}
	return out, nil
}
