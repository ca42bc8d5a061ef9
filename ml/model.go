package ml

import "context"

// Classifier is a trained binary model. Implementations are read-only after
// loading and must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, row Row) (int, error)
}

// Artifact is a classifier that can be populated from a file on disk.
type Artifact interface {
	Classifier
	Load(path string) error
}
