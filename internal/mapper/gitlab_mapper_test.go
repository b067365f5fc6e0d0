package mapper_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/mapper"
	"basegraph.app/concierge/internal/model"
)

var _ = Describe("GitLabEventMapper", func() {
	var (
		m   mapper.EventMapper
		ctx context.Context
	)

	BeforeEach(func() {
		m = mapper.NewGitLabEventMapper()
		ctx = context.Background()
	})

	Context("Issue Hook", func() {
		It("maps an opened issue", func() {
			body := []byte(`{
				"object_kind": "issue",
				"user": {"id": 7, "username": "alice"},
				"project": {"path_with_namespace": "acme/widgets", "default_branch": "main"},
				"object_attributes": {"iid": 4, "title": "Crash", "description": "segfault", "author_id": 7, "action": "open", "url": "https://gitlab.com/acme/widgets/-/issues/4"},
				"labels": [{"title": "bug"}]
			}`)

			ev, err := m.Map(ctx, body, map[string]string{
				"X-Gitlab-Event":      "Issue Hook",
				"X-Gitlab-Event-UUID": "uuid-1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.ID).To(Equal("uuid-1"))
			Expect(ev.Type).To(Equal(model.EventIssueOpened))
			Expect(ev.Issue.Ref).To(Equal(model.IssueRef{Provider: model.ProviderGitLab, Repo: "acme/widgets", Number: 4}))
			Expect(ev.Issue.Author).To(Equal("alice"))
			Expect(ev.Issue.Body).To(Equal("segfault"))
			Expect(ev.Issue.Labels).To(ConsistOf("bug"))
		})

		It("skips updates and closes", func() {
			body := []byte(`{
				"object_kind": "issue",
				"project": {"path_with_namespace": "acme/widgets"},
				"object_attributes": {"iid": 4, "action": "update"}
			}`)
			_, err := m.Map(ctx, body, map[string]string{"X-Gitlab-Event": "Issue Hook"})
			Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
		})
	})

	Context("Note Hook", func() {
		note := func(noteable string, authorID int64) []byte {
			return []byte(`{
				"object_kind": "note",
				"user": {"id": 9, "username": "bob"},
				"project": {"path_with_namespace": "acme/widgets"},
				"object_attributes": {"id": 55, "note": "ubuntu 22.04", "noteable_type": "` + noteable + `", "created_at": "2024-05-01 10:00:00 UTC"},
				"issue": {"iid": 4, "title": "Crash", "description": "segfault", "author_id": ` + itoa(authorID) + `}
			}`)
		}

		It("maps a comment by the issue author", func() {
			ev, err := m.Map(ctx, note("Issue", 9), map[string]string{"X-Gitlab-Event": "Note Hook"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Type).To(Equal(model.EventCommentCreated))
			Expect(ev.Issue.Author).To(Equal("bob"))
			Expect(ev.Comment.Author).To(Equal("bob"))
			Expect(ev.Comment.ID).To(Equal(int64(55)))
			Expect(ev.Comment.CreatedAt.Year()).To(Equal(2024))
		})

		It("keeps an unresolvable issue author distinct from the commenter", func() {
			ev, err := m.Map(ctx, note("Issue", 3), map[string]string{"X-Gitlab-Event": "Note Hook"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Issue.Author).To(Equal("id:3"))
			Expect(ev.Comment.Author).To(Equal("bob"))
		})

		It("skips notes on merge requests", func() {
			_, err := m.Map(ctx, note("MergeRequest", 9), map[string]string{"X-Gitlab-Event": "Note Hook"})
			Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
		})
	})

	It("falls back to object_kind without a header", func() {
		body := []byte(`{"object_kind": "pipeline"}`)
		_, err := m.Map(ctx, body, map[string]string{})
		Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
	})

	It("rejects malformed payloads", func() {
		_, err := m.Map(ctx, []byte(`[]`), map[string]string{"X-Gitlab-Event": "Issue Hook"})
		Expect(err).To(HaveOccurred())
	})
})

func itoa(n int64) string {
	return fmt.Sprintf("%d", n)
}
