// Command jobmanagerdemo exercises the jobmanager library end to end: it
// submits a handful of synthetic jobs, cancels one, and logs the resulting
// notifications and events, optionally serving the admin HTTP introspection
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"jobmanager"
)

func serveAdmin(addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	return srv.ListenAndServe()
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional; built-in defaults are used otherwise)")
	genExample := flag.Bool("generate-example-config", false, "write config.toml.example to the current directory and exit")
	adminAddr := flag.String("admin", "", "override the admin HTTP listen address (e.g. :8090)")
	jobCount := flag.Int("jobs", 3, "number of synthetic jobs to submit")
	flag.Parse()

	if *genExample {
		if err := jobmanager.GenerateExampleConfig("."); err != nil {
			fmt.Fprintln(os.Stderr, "generate example config:", err)
			os.Exit(1)
		}
		return
	}

	logger := jobmanager.NewLogger()
	defer logger.Close()

	cfg := jobmanager.DefaultConfig()
	if *configPath != "" {
		loaded, err := jobmanager.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config, falling back to defaults", "path", *configPath, "error", err)
		} else {
			cfg = loaded
		}
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	mgr := jobmanager.New[string, string, int](cfg, nil, logger)
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logEvents(ctx, mgr, logger)
	go logNotifications(ctx, mgr, logger)

	if cfg.AdminAddr != "" {
		admin := jobmanager.NewAdminServer[string, string, int](mgr, logger)
		go func() {
			logger.Info("admin server listening", "addr", cfg.AdminAddr)
			if err := serveAdmin(cfg.AdminAddr, admin); err != nil {
				logger.Error("admin server stopped", "error", err)
			}
		}()
	}

	var ids []string
	for i := 0; i < *jobCount; i++ {
		id := uuid.New().String()
		ids = append(ids, id)
		steps := i + 2
		job := jobmanager.NewJob[string, string, int](id, func(ctx context.Context, emit func(string) error, yield func(int) error) error {
			for step := 1; step <= steps; step++ {
				if err := emit(fmt.Sprintf("step %d/%d", step, steps)); err != nil {
					return err
				}
				select {
				case <-time.After(200 * time.Millisecond):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if mgr.Submit(job) {
			logger.Info("submitted job", "id", id)
		}
	}

	if len(ids) > 0 {
		time.Sleep(500 * time.Millisecond)
		logger.Info("cancelling job", "id", ids[0])
		mgr.Cancel(ids[0])
	}

	tapID := uuid.New().String()
	tapJob := jobmanager.NewJob[string, string, int](tapID, func(ctx context.Context, emit func(string) error, yield func(int) error) error {
		for i, total := 1, 3; i <= total; i++ {
			if err := emit(fmt.Sprintf("tap step %d/%d", i, total)); err != nil {
				return err
			}
			if err := yield(i); err != nil {
				return err
			}
		}
		return nil
	})
	if results, err := mgr.Tap(tapJob); err != nil {
		logger.Warn("tap rejected", "id", tapID, "error", err)
	} else {
		go func() {
			for r := range results {
				logger.Info("tap result", "id", tapID, "value", r)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
}

func logEvents(ctx context.Context, mgr *jobmanager.Manager[string, string, int], logger *jobmanager.Logger) {
	for {
		select {
		case e, ok := <-mgr.Events():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case jobmanager.CompletedEvent[string]:
				logger.Info("job completed", "id", ev.JobID, "duration", ev.Duration)
			case jobmanager.FailedEvent[string]:
				logger.Warn("job failed", "id", ev.JobID, "duration", ev.Duration, "error", ev.Err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func logNotifications(ctx context.Context, mgr *jobmanager.Manager[string, string, int], logger *jobmanager.Logger) {
	for {
		select {
		case n, ok := <-mgr.Notifications():
			if !ok {
				return
			}
			logger.Debug("notification", "id", n.JobID, "value", n.Value)
		case <-ctx.Done():
			return
		}
	}
}
