package predictor

import (
	"errors"
	"fmt"
)

// ErrModelNotLoaded is returned for every prediction when the artifact failed
// to load at startup.
var ErrModelNotLoaded = errors.New("Model not loaded. Please check the server logs.")

// FeatureCountError reports a feature vector of the wrong length.
type FeatureCountError struct {
	Expected int
	Got      int
}

func (e *FeatureCountError) Error() string {
	return fmt.Sprintf("❌ Expected %d features, but got %d.", e.Expected, e.Got)
}

// InferenceError wraps a failure raised by the classifier. Its message is the
// classifier's own.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
