package bootstrap_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/bootstrap"
	"basegraph.app/concierge/internal/state"
)

var _ = Describe("bootstrap", func() {
	var cfg config.Config

	BeforeEach(func() {
		cfg = config.Config{
			SpecDir:     "../specpack/testdata/pack",
			BotUsername: "concierge[bot]",
			GitHub:      config.GitHubConfig{Token: "t", APIURL: "https://api.github.com"},
			LLM:         config.LLMConfig{Provider: "openai", APIKey: "k"},
			State:       config.StateConfig{Backend: config.StateBackendComment},
		}
	})

	It("builds an orchestrator from configuration", func() {
		o, err := bootstrap.Orchestrator(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(o).NotTo(BeNil())
	})

	It("needs at least one tracker", func() {
		cfg.GitHub.Token = ""
		_, err := bootstrap.Trackers(cfg)
		Expect(err).To(MatchError(ContainSubstring("no issue tracker")))
	})

	It("selects the state backend", func() {
		store, err := bootstrap.StateStore(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(store).To(BeAssignableToTypeOf(&state.CommentStore{}))

		cfg.State.Backend = config.StateBackendRedis
		_, err = bootstrap.StateStore(cfg, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown llm providers", func() {
		cfg.LLM.Provider = "llama"
		_, err := bootstrap.Gateway(cfg)
		Expect(err).To(HaveOccurred())
	})

	It("reports a missing spec pack", func() {
		cfg.SpecDir = "does-not-exist"
		_, err := bootstrap.Orchestrator(cfg, nil)
		Expect(err).To(MatchError(ContainSubstring("loading spec pack")))
	})
})
