package issue_tracker_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service/issue_tracker"
)

var _ = Describe("GitLabTracker", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		handler http.HandlerFunc
		tracker *issue_tracker.GitLabTracker
		ref     model.IssueRef
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))

		var err error
		tracker, err = issue_tracker.NewGitLabTracker("glpat-test", server.URL)
		Expect(err).NotTo(HaveOccurred())
		ref = model.IssueRef{Provider: model.ProviderGitLab, Repo: "acme/platform/api", Number: 7}
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists notes oldest first and skips system notes", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(strings.HasSuffix(r.URL.Path, "/issues/7/notes")).To(BeTrue())
			Expect(r.URL.Query().Get("sort")).To(Equal("asc"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[
				{"id":11,"body":"first","system":false,"author":{"id":1,"username":"alice"},"created_at":"2024-02-01T10:00:00Z"},
				{"id":12,"body":"added label","system":true,"author":{"id":2,"username":"bot"}},
				{"id":13,"body":"second","system":false,"author":{"id":3,"username":"bob"},"created_at":"2024-02-01T11:00:00Z"}
			]`)
		}

		comments, err := tracker.ListComments(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(comments).To(HaveLen(2))
		Expect(comments[0].ID).To(Equal(int64(11)))
		Expect(comments[0].Author).To(Equal("alice"))
		Expect(comments[1].Body).To(Equal("second"))
	})

	It("posts a note", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":21,"body":"hi","author":{"id":9,"username":"concierge-bot"}}`)
		}

		c, err := tracker.PostComment(ctx, ref, "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID).To(Equal(int64(21)))
		Expect(c.Author).To(Equal("concierge-bot"))
	})

	It("returns empty content for a missing file", func() {
		content, err := tracker.GetFile(ctx, ref, "TROUBLESHOOTING.md", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(BeEmpty())
	})

	It("returns raw file content", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("ref")).To(Equal("main"))
			fmt.Fprint(w, "# API")
		}

		content, err := tracker.GetFile(ctx, ref, "README.md", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("# API"))
	})

	It("maps search hits to summaries", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("search")).To(Equal("timeout"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"iid":3,"title":"Timeouts","web_url":"https://gitlab.example/3","state":"opened"}]`)
		}

		hits, err := tracker.SearchIssues(ctx, ref, "timeout", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(ConsistOf(model.IssueSummary{Number: 3, Title: "Timeouts", URL: "https://gitlab.example/3", State: "opened"}))
	})
})
