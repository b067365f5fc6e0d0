package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/common/otel"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/bootstrap"
	"basegraph.app/concierge/internal/mapper"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		eventPath string
		eventName string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Handle the GitHub Actions event of the current job",
		Long: `Reads the webhook payload GitHub Actions stores at $GITHUB_EVENT_PATH and
runs one triage step for it. Only "issues" (opened) and "issue_comment"
(created) events are handled; anything else exits successfully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ServiceTypeAction)
			if err != nil {
				return err
			}
			if root.specDir != "" {
				cfg.SpecDir = root.specDir
			}
			if eventPath != "" {
				cfg.Action.EventPath = eventPath
			}
			if eventName != "" {
				cfg.Action.EventName = eventName
			}
			return runAction(cmd, cfg, root.jsonOutput, timeout)
		},
	}

	cmd.Flags().StringVar(&eventPath, "event-path", "", "Event payload file (default $GITHUB_EVENT_PATH)")
	cmd.Flags().StringVar(&eventName, "event-name", "", "Event name (default $GITHUB_EVENT_NAME)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Upper bound for the whole run")
	return cmd
}

func runAction(cmd *cobra.Command, cfg config.Config, jsonOutput bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	if telemetry != nil {
		defer func() { _ = telemetry.Shutdown(context.Background()) }()
	}
	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	if cfg.Action.EventPath == "" || cfg.Action.EventName == "" {
		return errors.New("GITHUB_EVENT_PATH and GITHUB_EVENT_NAME are required")
	}
	payload, err := os.ReadFile(cfg.Action.EventPath)
	if err != nil {
		return fmt.Errorf("reading event payload: %w", err)
	}

	ev, err := mapper.NewGitHubEventMapper().MapNamed(ctx, cfg.Action.EventName, os.Getenv("GITHUB_RUN_ID"), payload)
	if err != nil {
		if errors.Is(err, mapper.ErrUnsupportedEvent) {
			slog.InfoContext(ctx, "nothing to do for event", "reason", err)
			return nil
		}
		return err
	}

	var redisClient *redis.Client
	if cfg.State.UsesRedis() {
		opts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	orchestrator, err := bootstrap.Orchestrator(cfg, redisClient)
	if err != nil {
		return err
	}

	span := logger.StartSpan(ctx, "concierge.action.run")
	defer span.End()

	outcome, err := orchestrator.Handle(span.Context(), ev)
	if err != nil {
		span.RecordError(err)
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}
	fmt.Fprintf(out, "action=%s phase=%s category=%s\n", outcome.Action, outcome.Phase, outcome.Category)
	return nil
}
