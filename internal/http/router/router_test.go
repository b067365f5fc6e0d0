package router_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/http/router"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service"
)

type recordingIngest struct {
	events []model.Event
}

func (r *recordingIngest) Ingest(_ context.Context, ev model.Event) (*service.EventIngestResult, error) {
	r.events = append(r.events, ev)
	return &service.EventIngestResult{DedupeKey: "k", Enqueued: true}, nil
}

var _ = Describe("SetupRoutes", func() {
	var (
		engine *gin.Engine
		ingest *recordingIngest
	)

	do := func(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		engine = gin.New()
		ingest = &recordingIngest{}
	})

	It("only mounts providers that have a secret", func() {
		router.SetupRoutes(engine, ingest, router.RouterConfig{GitLabWebhookSecret: "t"})

		Expect(do(http.MethodGet, "/health", nil, nil).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodPost, "/webhooks/github", []byte(`{}`), nil).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodPost, "/webhooks/gitlab", []byte(`{}`), nil).Code).To(Equal(http.StatusUnauthorized))
		Expect(do(http.MethodPost, "/api/v1/events/ingest", []byte(`{}`), nil).Code).To(Equal(http.StatusNotFound))
	})

	Describe("canonical ingest", func() {
		BeforeEach(func() {
			router.SetupRoutes(engine, ingest, router.RouterConfig{IngestToken: "tok", TraceHeaderName: "X-Trace-Id"})
		})

		body := []byte(`{
			"event_id": "e-1",
			"type": "comment_created",
			"provider": "github",
			"repo": "acme/widgets",
			"issue_number": 7,
			"author": "alice",
			"comment": {"id": 3, "author": "alice", "body": "ubuntu"}
		}`)

		It("requires the bearer token", func() {
			Expect(do(http.MethodPost, "/api/v1/events/ingest", body, nil).Code).To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/api/v1/events/ingest", body, map[string]string{"Authorization": "Bearer bad"}).Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts a canonical event", func() {
			rec := do(http.MethodPost, "/api/v1/events/ingest", body, map[string]string{
				"Authorization": "Bearer tok",
				"Content-Type":  "application/json",
				"X-Trace-Id":    "t-1",
			})
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(ingest.events).To(HaveLen(1))
			ev := ingest.events[0]
			Expect(ev.Type).To(Equal(model.EventCommentCreated))
			Expect(ev.Action).To(Equal("created"))
			Expect(ev.Comment.Body).To(Equal("ubuntu"))
			Expect(ev.TraceID).To(Equal("t-1"))
		})

		It("validates the request", func() {
			rec := do(http.MethodPost, "/api/v1/events/ingest", []byte(`{"type": "closed"}`), map[string]string{"Authorization": "Bearer tok"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(ingest.events).To(BeEmpty())
		})
	})
})
