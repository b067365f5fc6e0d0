package webhook_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/http/handler/webhook"
	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/service"
)

const githubSecret = "s3cret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		ingest *fakeIngest
		router *gin.Engine
		opened []byte
	)

	BeforeEach(func() {
		ingest = &fakeIngest{}
		h := webhook.NewGitHubWebhookHandler(githubSecret, ingest, mapper.NewGitHubEventMapper(), "X-Trace-Id")
		router = gin.New()
		router.POST("/webhooks/github", h.HandleEvent)

		opened = []byte(`{
			"action": "opened",
			"issue": {"number": 7, "title": "Build fails", "body": "linker error", "user": {"login": "alice"}},
			"repository": {"full_name": "acme/widgets", "default_branch": "main"}
		}`)
	})

	send := func(body []byte, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("ingests a signed issue event", func() {
		rec := send(opened, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-GitHub-Delivery":   "d-1",
			"X-Hub-Signature-256": sign(githubSecret, opened),
			"X-Trace-Id":          "trace-1",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(ingest.events).To(HaveLen(1))
		ev := ingest.events[0]
		Expect(ev.ID).To(Equal("d-1"))
		Expect(ev.Type).To(Equal(model.EventIssueOpened))
		Expect(ev.TraceID).To(Equal("trace-1"))

		var resp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["enqueued"]).To(BeTrue())
	})

	It("rejects missing and bad signatures", func() {
		rec := send(opened, map[string]string{"X-GitHub-Event": "issues"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		rec = send(opened, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-Hub-Signature-256": sign("other", opened),
		})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(ingest.events).To(BeEmpty())
	})

	It("answers pings", func() {
		body := []byte(`{"zen": "Keep it logically awesome."}`)
		rec := send(body, map[string]string{
			"X-GitHub-Event":      "ping",
			"X-Hub-Signature-256": sign(githubSecret, body),
		})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("pong"))
	})

	It("acknowledges events it does not handle", func() {
		body := []byte(`{"action": "closed", "issue": {"number": 7}, "repository": {"full_name": "acme/widgets"}}`)
		rec := send(body, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-Hub-Signature-256": sign(githubSecret, body),
		})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
		Expect(ingest.events).To(BeEmpty())
	})

	It("rejects malformed payloads", func() {
		body := []byte(`{broken`)
		rec := send(body, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-Hub-Signature-256": sign(githubSecret, body),
		})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("reports ingest failures as 500 so the delivery is retried", func() {
		ingest.err = errors.New("redis down")
		rec := send(opened, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-Hub-Signature-256": sign(githubSecret, opened),
		})
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("reports invalid events as 400", func() {
		ingest.err = service.ErrInvalidEvent
		rec := send(opened, map[string]string{
			"X-GitHub-Event":      "issues",
			"X-Hub-Signature-256": sign(githubSecret, opened),
		})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("VerifySignature", func() {
	body := []byte("payload")

	It("accepts the matching digest", func() {
		Expect(webhook.VerifySignature([]byte("k"), body, sign("k", body))).To(BeTrue())
	})

	It("rejects other encodings and empty secrets", func() {
		Expect(webhook.VerifySignature([]byte("k"), body, "sha1=abc")).To(BeFalse())
		Expect(webhook.VerifySignature([]byte("k"), body, "sha256=zz")).To(BeFalse())
		Expect(webhook.VerifySignature(nil, body, sign("", body))).To(BeFalse())
	})
})
