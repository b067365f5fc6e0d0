package webhook_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/http/handler/webhook"
	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
)

var _ = Describe("GitLabWebhookHandler", func() {
	var (
		ingest *fakeIngest
		router *gin.Engine
		note   []byte
	)

	BeforeEach(func() {
		ingest = &fakeIngest{}
		h := webhook.NewGitLabWebhookHandler("token-1", ingest, mapper.NewGitLabEventMapper(), "X-Trace-Id")
		router = gin.New()
		router.POST("/webhooks/gitlab", h.HandleEvent)

		note = []byte(`{
			"object_kind": "note",
			"user": {"id": 9, "username": "bob"},
			"project": {"path_with_namespace": "acme/widgets", "default_branch": "main"},
			"object_attributes": {"id": 55, "note": "/stop", "noteable_type": "Issue"},
			"issue": {"iid": 4, "title": "Crash", "description": "segfault", "author_id": 9}
		}`)
	})

	send := func(body []byte, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("ingests a note on an issue", func() {
		rec := send(note, map[string]string{
			"X-Gitlab-Token":      "token-1",
			"X-Gitlab-Event":      "Note Hook",
			"X-Gitlab-Event-UUID": "uuid-9",
		})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(ingest.events).To(HaveLen(1))
		Expect(ingest.events[0].Type).To(Equal(model.EventCommentCreated))
		Expect(ingest.events[0].ID).To(Equal("uuid-9"))
		Expect(ingest.events[0].Issue.Ref.Provider).To(Equal(model.ProviderGitLab))
	})

	It("rejects a missing or wrong token", func() {
		rec := send(note, map[string]string{"X-Gitlab-Event": "Note Hook"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		rec = send(note, map[string]string{"X-Gitlab-Token": "nope", "X-Gitlab-Event": "Note Hook"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(ingest.events).To(BeEmpty())
	})

	It("ignores hooks other than issues and notes", func() {
		rec := send([]byte(`{"object_kind": "push"}`), map[string]string{
			"X-Gitlab-Token": "token-1",
			"X-Gitlab-Event": "Push Hook",
		})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
		Expect(ingest.events).To(BeEmpty())
	})
})
