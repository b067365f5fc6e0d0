package model

// Provider identifies the issue tracker a conversation lives on.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)
