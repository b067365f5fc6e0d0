package queue_test

import (
	"context"
	"encoding/json"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/common/id"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
)

func sampleEvent() model.Event {
	return model.Event{
		ID:     "delivery-1",
		Type:   model.EventCommentCreated,
		Action: "created",
		Issue: model.Issue{
			Ref:    model.IssueRef{Provider: model.ProviderGitHub, Repo: "acme/widgets", Number: 7},
			Title:  "Build fails",
			Author: "alice",
		},
		Comment: &model.Comment{ID: 3, Author: "alice", Body: "ubuntu 22.04"},
	}
}

var _ = Describe("ParseMessage", func() {
	payload := func(ev model.Event) string {
		data, err := json.Marshal(ev)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	It("decodes stream values as Redis returns them", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"event_type":   "comment_created",
				"issue_number": "7",
				"payload":      payload(sampleEvent()),
				"attempt":      "2",
				"trace_id":     "abc",
				"last_error":   "triage post_comment: 503",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.EventID).To(Equal("delivery-1"))
		Expect(msg.EventType).To(Equal("comment_created"))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("abc"))
		Expect(msg.Event.TraceID).To(Equal("abc"))
		Expect(msg.LastError).To(ContainSubstring("503"))
		Expect(msg.Event.Comment.Body).To(Equal("ubuntu 22.04"))
	})

	It("defaults the attempt to one", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"payload": payload(sampleEvent())}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
	})

	DescribeTable("rejects broken entries",
		func(values map[string]any) {
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(HaveOccurred())
		},
		Entry("missing payload", map[string]any{"event_type": "issue_opened"}),
		Entry("payload is not json", map[string]any{"payload": "{"}),
		Entry("payload without type", map[string]any{"payload": `{"issue": {"ref": {"repo": "a/b", "number": 1}}}`}),
		Entry("payload without issue", map[string]any{"payload": `{"type": "issue_opened"}`}),
		Entry("attempt is not a number", map[string]any{"payload": payload(sampleEvent()), "attempt": "x"}),
	)
})

var _ = Describe("Redis stream round trip", func() {
	var (
		ctx      context.Context
		client   *redis.Client
		producer queue.Producer
		consumer *queue.RedisConsumer
		cfg      queue.ConsumerConfig
	)

	BeforeEach(func() {
		url := os.Getenv("CONCIERGE_TEST_REDIS_URL")
		if url == "" {
			Skip("CONCIERGE_TEST_REDIS_URL not set")
		}

		opts, err := redis.ParseURL(url)
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(opts)

		Expect(id.Init(1)).To(Succeed())
		ctx = context.Background()
		suffix := id.NewString()
		cfg = queue.ConsumerConfig{
			Stream:      "concierge:test:events:" + suffix,
			Group:       "g",
			Consumer:    "c",
			DLQStream:   "concierge:test:dlq:" + suffix,
			BatchSize:   10,
			Block:       100 * time.Millisecond,
			MaxAttempts: 3,
		}
		DeferCleanup(func() {
			client.Del(ctx, cfg.Stream, cfg.DLQStream)
			client.Close()
		})

		producer = queue.NewRedisProducer(client, cfg.Stream, nil)
		consumer, err = queue.NewRedisConsumer(client, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("delivers enqueued events", func() {
		trace := "trace-9"
		Expect(producer.Enqueue(ctx, queue.EventMessage{Event: sampleEvent(), TraceID: &trace})).To(Succeed())

		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Attempt).To(Equal(1))
		Expect(msgs[0].TraceID).To(Equal("trace-9"))
		Expect(msgs[0].Event.Issue.Ref.Number).To(Equal(int64(7)))
		Expect(consumer.Ack(ctx, msgs[0])).To(Succeed())

		pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())
	})

	It("requeues with the next attempt and dead-letters", func() {
		Expect(producer.Enqueue(ctx, queue.EventMessage{Event: sampleEvent()})).To(Succeed())
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))

		Expect(consumer.Requeue(ctx, msgs[0], "transient")).To(Succeed())
		msgs, err = consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Attempt).To(Equal(2))
		Expect(msgs[0].LastError).To(Equal("transient"))

		Expect(consumer.SendDLQ(ctx, msgs[0], "fatal")).To(Succeed())
		dead, err := client.XRange(ctx, cfg.DLQStream, "-", "+").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(dead).To(HaveLen(1))
		Expect(dead[0].Values["error"]).To(Equal("fatal"))
	})

	It("acks entries it cannot parse", func() {
		Expect(client.XAdd(ctx, &redis.XAddArgs{Stream: cfg.Stream, Values: map[string]any{"junk": "1"}}).Err()).To(Succeed())
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())

		pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending.Count).To(BeZero())
	})

	It("claims a dedupe key once", func() {
		deduper := queue.NewRedisDeduper(client)
		key := "test:" + id.NewString()
		DeferCleanup(func() { _ = deduper.Release(ctx, key) })

		fresh, err := deduper.Claim(ctx, key, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh).To(BeTrue())

		fresh, err = deduper.Claim(ctx, key, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh).To(BeFalse())

		Expect(deduper.Release(ctx, key)).To(Succeed())
		fresh, err = deduper.Claim(ctx, key, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh).To(BeTrue())
	})
})
