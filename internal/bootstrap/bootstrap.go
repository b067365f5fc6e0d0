// Package bootstrap assembles the triage orchestrator from configuration for
// the worker and the one-shot CLI.
package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/common/llm"
	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/agent"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service/issue_tracker"
	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/state"
	"basegraph.app/concierge/internal/triage"
)

// Trackers registers a tracker per provider that has a token.
func Trackers(cfg config.Config) (*issue_tracker.Router, error) {
	trackers := map[model.Provider]issue_tracker.IssueTracker{}
	if cfg.GitHub.Enabled() {
		gh, err := issue_tracker.NewGitHubTracker(issue_tracker.GitHubOptions{
			Token:  cfg.GitHub.Token,
			APIURL: cfg.GitHub.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating github tracker: %w", err)
		}
		trackers[model.ProviderGitHub] = gh
	}
	if cfg.GitLab.Enabled() {
		gl, err := issue_tracker.NewGitLabTracker(cfg.GitLab.Token, cfg.GitLab.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("creating gitlab tracker: %w", err)
		}
		trackers[model.ProviderGitLab] = gl
	}
	if len(trackers) == 0 {
		return nil, fmt.Errorf("no issue tracker configured")
	}
	return issue_tracker.NewRouter(trackers), nil
}

// StateStore picks the configured backend. redisClient is only used, and
// then required, for the redis backend.
func StateStore(cfg config.Config, redisClient *redis.Client) (state.Store, error) {
	if !cfg.State.UsesRedis() {
		return state.NewCommentStore(), nil
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis state backend needs a redis client")
	}
	return state.NewRedisStore(redisClient, cfg.State.KeyPrefix), nil
}

func Gateway(cfg config.Config) (*agent.LLMGateway, error) {
	client, err := llm.New(llm.Config{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return agent.NewGateway(client), nil
}

func Orchestrator(cfg config.Config, redisClient *redis.Client) (*triage.Orchestrator, error) {
	pack, err := specpack.Load(cfg.SpecDir)
	if err != nil {
		return nil, fmt.Errorf("loading spec pack from %s: %w", cfg.SpecDir, err)
	}
	trackers, err := Trackers(cfg)
	if err != nil {
		return nil, err
	}
	store, err := StateStore(cfg, redisClient)
	if err != nil {
		return nil, err
	}
	gateway, err := Gateway(cfg)
	if err != nil {
		return nil, err
	}

	return triage.New(trackers, store, gateway, pack, triage.Config{
		BotUsername:        cfg.BotUsername,
		MaxLoops:           cfg.MaxLoops,
		MaxBriefIterations: cfg.MaxRevisions,
	})
}
