package parser_test

import (
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/parser"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeKey", func() {
	DescribeTable("produces snake_case field names",
		func(in, expected string) {
			Expect(parser.NormalizeKey(in)).To(Equal(expected))
		},
		Entry("spaces", "Operating System", "operating_system"),
		Entry("punctuation stripped", "Error Message (full)", "error_message_full"),
		Entry("runs of whitespace collapse", "Build   \t Tool", "build_tool"),
		Entry("surrounding whitespace", "  Version ", "version"),
		Entry("underscores kept", "issue_type", "issue_type"),
	)
})

var _ = Describe("ParseSections", func() {
	It("collects bodies under headings", func() {
		body := "### Operating System\n\nUbuntu 22.04\n\n### Error Message\n\n```\nld: symbol not found\n```\n"
		fields := parser.ParseSections(body)
		Expect(fields).To(HaveKeyWithValue("operating_system", "Ubuntu 22.04"))
		Expect(fields).To(HaveKeyWithValue("error_message", "```\nld: symbol not found\n```"))
	})

	It("drops empty sections and ignores preamble text", func() {
		body := "Intro text\n## Version\n\n## Logs\nline 1\r\nline 2"
		fields := parser.ParseSections(body)
		Expect(fields).NotTo(HaveKey("version"))
		Expect(fields).To(HaveLen(1))
		Expect(fields["logs"]).To(Equal("line 1\r\nline 2"))
	})

	It("returns an empty map for blank input", func() {
		Expect(parser.ParseSections("  \n ")).To(BeEmpty())
	})

	It("lets a repeated heading overwrite the earlier one", func() {
		fields := parser.ParseSections("# Version\n1.0\n# Version\n2.0")
		Expect(fields).To(HaveKeyWithValue("version", "2.0"))
	})
})

var _ = Describe("ExtractKeyValueLines", func() {
	It("reads colon and equals separated lines", func() {
		text := "OS: Windows 11\nShell = bash\nnot a pair\nEmpty:   \n"
		fields := parser.ExtractKeyValueLines(text)
		Expect(fields).To(Equal(model.Fields{
			"os":    "Windows 11",
			"shell": "bash",
		}))
	})

	It("splits only on the first separator", func() {
		fields := parser.ExtractKeyValueLines("Error: exit code=2: failed")
		Expect(fields).To(HaveKeyWithValue("error", "exit code=2: failed"))
	})
})

var _ = Describe("Merge", func() {
	It("lets later maps win, case-insensitively", func() {
		merged := parser.Merge(
			model.Fields{"os": "linux", "version": "1.0"},
			model.Fields{"OS": "macOS"},
		)
		Expect(merged).To(Equal(model.Fields{"os": "macOS", "version": "1.0"}))
	})

	It("handles nil maps", func() {
		Expect(parser.Merge(nil, model.Fields{"a": "b"}, nil)).To(Equal(model.Fields{"a": "b"}))
	})
})
