package triage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/triage"
)

var _ = Describe("Commands", func() {
	It("finds commands anywhere in a comment", func() {
		Expect(triage.ParseCommand("please /STOP asking")).To(Equal(triage.CommandStop))
		Expect(triage.ParseCommand("I have a different problem /diagnose")).To(Equal(triage.CommandDiagnose))
		Expect(triage.ParseCommand("/diagnose then /stop")).To(Equal(triage.CommandStop))
		Expect(triage.ParseCommand("nothing here")).To(Equal(triage.CommandNone))
	})

	It("detects disagreement phrases case-insensitively", func() {
		Expect(triage.DetectDisagreement("That DIDN'T WORK for me")).To(BeTrue())
		Expect(triage.DetectDisagreement("this is not my case")).To(BeTrue())
		Expect(triage.DetectDisagreement("Thanks, that fixed it")).To(BeFalse())
	})
})

var _ = Describe("ResolveCategory", func() {
	var pack *specpack.Pack

	BeforeEach(func() {
		var err error
		pack, err = specpack.Load("../specpack/testdata/pack")
		Expect(err).NotTo(HaveOccurred())
	})

	It("prefers an explicit issue type naming a category", func() {
		category, source, ok := triage.ResolveCategory(pack, "App crashes", "### Issue type\nBuild\n\n### Details\npanic on start")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal("build"))
		Expect(source).To(Equal(triage.SourceFormField))
	})

	It("ignores an issue type that is not configured", func() {
		category, source, ok := triage.ResolveCategory(pack, "App crashes", "### Type\nPerformance\n\nsegfault at startup")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal("runtime"))
		Expect(source).To(Equal(triage.SourceKeywords))
	})

	It("picks the highest keyword score", func() {
		category, _, ok := triage.ResolveCategory(pack, "Linker fails during build", "cmake cannot find the library")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal("build"))
	})

	It("breaks ties by configured order", func() {
		category, _, ok := triage.ResolveCategory(pack, "make", "segfault")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal("build"))
	})

	It("routes questions without problem vocabulary to off-topic", func() {
		category, source, ok := triage.ResolveCategory(pack, "Question about themes", "How do I change the colors? Thanks!")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal(triage.OffTopicCategory))
		Expect(source).To(Equal(triage.SourceOffTopic))
	})

	It("keeps off-topic when the problem vocabulary is negated", func() {
		category, _, ok := triage.ResolveCategory(pack, "Question", "There is no error, I just want to know how do i tune it")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal(triage.OffTopicCategory))
	})

	It("does not treat real problems as off-topic", func() {
		category, _, ok := triage.ResolveCategory(pack, "Question: build is broken", "the linker fails")
		Expect(ok).To(BeTrue())
		Expect(category).To(Equal("build"))
	})

	It("defers to the classifier when nothing matches", func() {
		_, _, ok := triage.ResolveCategory(pack, "Hello", "Something odd happened")
		Expect(ok).To(BeFalse())
	})
})
