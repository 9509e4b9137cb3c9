// Command loresmith-run drives one creation session against the generation backend
// without the HTTP surface, picking an option at every stage until a world exists.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/loresmith/internal/app"
	"github.com/yungbote/loresmith/internal/config"
	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/pipeline"
	"github.com/yungbote/loresmith/internal/pipeline/selection"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/session"
)

func main() {
	var (
		theme    string
		userID   int64
		count    int
		pick     int
		retries  int
		backend  string
		deadline time.Duration
	)
	flag.StringVar(&theme, "theme", pipeline.DefaultTheme, "creation theme")
	flag.Int64Var(&userID, "user", 1, "user id the world is created for")
	flag.IntVar(&count, "count", 0, "options per stage (0 uses config)")
	flag.IntVar(&pick, "pick", 0, "option index to pick at every stage (clamped to the options offered)")
	flag.IntVar(&retries, "retries", 2, "retries per failed stage")
	flag.StringVar(&backend, "backend", "", "generation backend base URL (overrides config)")
	flag.DurationVar(&deadline, "timeout", 30*time.Minute, "give up after this long")
	flag.Parse()

	if backend != "" {
		_ = os.Setenv("LORESMITH_BACKEND_URL", backend)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	jobs, err := client.New(client.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout.Duration,
		Tokens:  app.BackendTokens(cfg.Backend),
		Log:     log,
	})
	if err != nil {
		fmt.Printf("init backend client: %v\n", err)
		os.Exit(1)
	}
	if count <= 0 {
		count = cfg.Jobs.Count
	}
	reg := session.NewRegistry(jobs, selection.NewMemoryStore(), session.Options{
		PollInterval: cfg.Jobs.PollInterval.Duration,
		EvictGrace:   cfg.Jobs.EvictGrace.Duration,
		DefaultCount: count,
		Log:          log,
	})
	defer reg.Close(context.WithoutCancel(ctx))

	ctl, err := reg.Create(ctx, session.CreateRequest{Theme: theme, UserID: userID, Count: count})
	if err != nil {
		fmt.Printf("create session: %v\n", err)
		os.Exit(1)
	}

	v, err := drive(ctx, log, ctl, pick, retries)
	if err != nil {
		fmt.Printf("run failed at %s: %v\n", v.Stage, err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(map[string]any{
		"world_id":  v.WorldID,
		"theme":     v.Theme,
		"selection": v.Selection,
	}, "", "  ")
	fmt.Println(string(out))
}

// drive polls the pipeline view and acts on it: pick, advance, retry on failure, until
// the world id is known.
func drive(ctx context.Context, log *logger.Logger, ctl *pipeline.Controller, pick, retries int) (pipeline.View, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	failures := map[domain.Stage]int{}
	for {
		v := ctl.View()
		switch {
		case v.WorldID != 0:
			return v, nil
		case v.Stage == domain.StageFinalize && v.FinalizeError != "":
			if failures[v.Stage] >= retries {
				return v, errors.New(v.FinalizeError)
			}
			failures[v.Stage]++
			log.Warn("world assembly failed, retrying", "error", v.FinalizeError, "attempt", failures[v.Stage])
			if err := ctl.RetryFinalize(ctx); err != nil {
				return v, err
			}
		case v.Error != "" && !v.IsLoading:
			if failures[v.Stage] >= retries {
				return v, errors.New(v.Error)
			}
			failures[v.Stage]++
			log.Warn("stage failed, retrying", "stage", string(v.Stage), "error", v.Error, "attempt", failures[v.Stage])
			if err := ctl.Retry(ctx); err != nil {
				return v, err
			}
		case v.Stage.Valid() && !v.IsLoading && len(v.Options) > 0:
			if v.SelectedIndex == nil {
				i := min(max(pick, 0), len(v.Options)-1)
				log.Info("picking option", "stage", string(v.Stage), "index", i, "name", v.Options[i].Name)
				if err := ctl.SelectCard(ctx, i); err != nil {
					return v, err
				}
				continue
			}
			if err := ctl.Advance(ctx); err != nil {
				return v, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctl.View(), ctx.Err()
		case <-ticker.C:
		}
	}
}
