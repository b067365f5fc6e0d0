package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/agent"
)

type pair struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var _ = Describe("Parse", func() {
	It("accepts valid JSON with every required key", func() {
		res := agent.Parse[pair](`{"name":"a","count":2}`, "name", "count")
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value).To(Equal(pair{Name: "a", Count: 2}))
		Expect(res.Violations).To(BeEmpty())
		Expect(res.Repaired).To(BeFalse())
	})

	It("strips markdown code fences", func() {
		res := agent.Parse[pair]("```json\n{\"name\":\"a\",\"count\":1}\n```", "name")
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value.Name).To(Equal("a"))
	})

	It("reports missing required keys as partial", func() {
		res := agent.Parse[pair](`{"name":"a"}`, "name", "count")
		Expect(res.Status).To(Equal(agent.StatusPartialOk))
		Expect(res.Value.Name).To(Equal("a"))
		Expect(res.Violations).To(ConsistOf(`missing required key "count"`))
	})

	It("repairs a trailing comma", func() {
		res := agent.Parse[pair](`{"name":"a","count":3,}`, "name", "count")
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Repaired).To(BeTrue())
		Expect(res.Value.Count).To(Equal(3))
	})

	It("repairs JSON surrounded by prose", func() {
		res := agent.Parse[pair](`Here you go: {"name":"b","count":1} hope that helps`, "name")
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value.Name).To(Equal("b"))
	})

	It("fails on an empty reply and keeps the raw text", func() {
		res := agent.Parse[pair]("   ")
		Expect(res.Status).To(Equal(agent.StatusFailed))
		Expect(res.Raw).To(Equal("   "))
		Expect(res.Violations).To(ConsistOf("empty response"))
	})

	It("fails when the payload has the wrong shape", func() {
		res := agent.Parse[pair](`["not","an","object"]`, "name")
		Expect(res.Status).To(Equal(agent.StatusFailed))
		Expect(res.Value).To(Equal(pair{}))
	})
})

var _ = Describe("EnvList", func() {
	It("decodes a list of pairs", func() {
		res := agent.Parse[agent.Brief](`{"summary":"s","environment":[{"key":"os","value":"linux"}]}`)
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value.Environment).To(Equal(agent.EnvList{{Key: "os", Value: "linux"}}))
	})

	It("decodes a plain object in key order", func() {
		res := agent.Parse[agent.Brief](`{"summary":"s","environment":{"version":"1.2","os":"linux","arm":true}}`)
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value.Environment).To(Equal(agent.EnvList{
			{Key: "arm", Value: "true"},
			{Key: "os", Value: "linux"},
			{Key: "version", Value: "1.2"},
		}))
	})

	It("treats null as empty", func() {
		res := agent.Parse[agent.Brief](`{"summary":"s","environment":null}`)
		Expect(res.Status).To(Equal(agent.StatusOk))
		Expect(res.Value.Environment).To(BeEmpty())
	})
})
