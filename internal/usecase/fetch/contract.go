package fetch

import (
	"context"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// Source opens the upstream pull request dataset.
type Source interface {
	Name() string
	Open(ctx context.Context) (domain.PullRequestReader, error)
}

// Writer persists the sampled dataset.
type Writer interface {
	WriteFile(path string, records []domain.PullRequest) error
}
