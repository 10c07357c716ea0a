package domain

import "context"

// PullRequest is a single record of the sampled pull request dataset.
// Fields are copied verbatim from the upstream dataset; ID is the source
// identifier in its textual form.
type PullRequest struct {
	ID    string
	Title string
	Body  string
}

// PullRequestReader streams pull requests in dataset order.
// Next returns io.EOF after the last record.
type PullRequestReader interface {
	Next(ctx context.Context) (PullRequest, error)
	Close() error
}
