// Example usage of the powerpool work dispatcher.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/logger"
	"github.com/arcflow-dev/powerpool/internal/work"
	"github.com/arcflow-dev/powerpool/pkg/workpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting powerpool example")

	pool, err := workpool.New(
		workpool.WithID("example"),
		workpool.WithMaxThreads(cfg.Pool.MaxThreads),
		workpool.WithMinThreads(cfg.Pool.MinThreads),
		workpool.WithKeepAliveTime(cfg.Pool.KeepAliveTime),
		workpool.WithMonitor(cfg.Monitor),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pool")
	}

	sub := pool.Subscribe(func(e *events.Event) {
		log.Debug().Str("type", string(e.Type)).Interface("data", e.Data).Msg("event")
	})
	defer pool.Unsubscribe(sub)

	fmt.Println("=== Submit ===")
	id, err := pool.Submit(func(ctx context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "hello from powerpool", nil
	}, workpool.WithPriority(work.PriorityHighest))
	if err != nil {
		log.Fatal().Err(err).Msg("submit failed")
	}

	fmt.Println("=== Dependencies ===")
	dependentID, err := pool.Submit(func(ctx context.Context) (any, error) {
		return "ran after prerequisite", nil
	}, workpool.WithDependsOn(id))
	if err != nil {
		log.Fatal().Err(err).Msg("submit with dependency failed")
	}

	fmt.Println("=== Group ===")
	for i := 0; i < 3; i++ {
		n := i
		_, err := pool.Submit(func(ctx context.Context) (any, error) {
			return n * n, nil
		}, workpool.WithGroup("squares"))
		if err != nil {
			log.Fatal().Err(err).Msg("submit to group failed")
		}
	}

	ctx := context.Background()
	if err := pool.Wait(ctx, id); err != nil {
		log.Error().Err(err).Msg("wait failed")
	}
	if err := pool.Wait(ctx, dependentID); err != nil {
		log.Error().Err(err).Msg("wait on dependent failed")
	}
	if err := pool.Group("squares").Wait(ctx); err != nil {
		log.Error().Err(err).Msg("group wait failed")
	}

	if w, ok := pool.Work(id); ok {
		fmt.Printf("result: %v\n", w.Result())
	}

	var httpServer *http.Server
	if mon := pool.Monitor(); mon != nil {
		monCtx, monCancel := context.WithCancel(ctx)
		defer monCancel()
		mon.Start(monCtx)

		httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Monitor.Host, cfg.Monitor.Port),
			Handler: mon,
		}
		go func() {
			log.Info().Str("addr", httpServer.Addr).Msg("monitor listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("monitor server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("monitor shutdown error")
		}
	}

	if err := pool.Stop(shutdownCtx); err != nil && err != context.DeadlineExceeded {
		log.Error().Err(err).Msg("pool shutdown error")
	}

	log.Info().Msg("stopped")
}
