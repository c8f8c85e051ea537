package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/smartmath/internal/chat"
	"github.com/aixgo-dev/smartmath/internal/console"
	tracing "github.com/aixgo-dev/smartmath/internal/observability"
	"github.com/aixgo-dev/smartmath/internal/telegram"
	"github.com/aixgo-dev/smartmath/pkg/config"
	"github.com/aixgo-dev/smartmath/pkg/observability"
	"github.com/aixgo-dev/smartmath/pkg/security"
	"github.com/aixgo-dev/smartmath/pkg/session"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Polls the Telegram Bot API and answers messages. Health and Prometheus
endpoints are served on observability.addr when set.

The bot token is read from SMARTMATH_BOT_TOKEN, the dotenv file or
telegram.token in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireToken(); err != nil {
			logger.Error("cannot start", zap.Error(err))
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal",
	Long: `Starts a local session against the same dispatcher the bot uses.

Commands start with "/". Inline buttons are pressed with
"!reuse N", "!solve N" and "!hist [N]".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := session.New(cfg.Session)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()

		d := newDispatcher(cfg, store)
		return console.New(d, console.DefaultUserID, cmd.OutOrStdout(), logger).Run(cmd.Context())
	},
}

func newDispatcher(cfg *config.Config, store session.Store) *chat.Dispatcher {
	return chat.New(store,
		security.NewIntervalLimiter(cfg.Bot.RateLimitInterval),
		chat.WithLogger(logger),
		chat.WithQuickEvalMaxLength(cfg.Bot.QuickEvalMaxLength),
	)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("starting smartmath",
		zap.String("version", Version),
		zap.String("session_store", cfg.Session.Store),
		zap.String("token", security.MaskSecret(cfg.Telegram.Token)))

	traceCfg := tracing.ConfigFromEnv(tracing.Config{
		Exporter:     cfg.Observability.Tracing.Exporter,
		OTLPEndpoint: cfg.Observability.Tracing.Endpoint,
		Insecure:     cfg.Observability.Tracing.Insecure,
	})
	if err := tracing.Init(traceCfg, logger); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := session.New(cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	tr, err := telegram.New(cfg.Telegram.Token, newDispatcher(cfg, store), telegram.Config{
		SendRate:        cfg.Telegram.SendRate,
		SendBurst:       cfg.Telegram.SendBurst,
		BreakerFailures: cfg.Telegram.BreakerFailures,
		BreakerReset:    cfg.Telegram.BreakerReset,
		QueueBuffer:     cfg.Telegram.QueueBuffer,
		WorkerIdle:      cfg.Telegram.WorkerIdle,
	}, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	observability.InitMetrics()
	sampler := observability.NewSampler(cfg.Observability.SampleInterval, store.Count, tr.ActiveWorkers, logger)
	if err := sampler.Start(); err != nil {
		_ = store.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(gctx)
	})

	if cfg.Observability.Addr != "" {
		checker := observability.NewHealthChecker(Version)
		checker.RegisterCheck(observability.SessionStoreCheck(store.Count))
		srv := observability.NewServer(cfg.Observability.Addr, checker)

		g.Go(func() error {
			logger.Info("observability server listening", zap.String("addr", cfg.Observability.Addr))
			if err := srv.Start(); err != nil {
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("stopped with error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	tr.Close(shutdownCtx)
	sampler.Stop()
	if err := store.Close(); err != nil {
		logger.Warn("close session store", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}

	logger.Info("smartmath stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
