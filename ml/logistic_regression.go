package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LogisticRegression is a linear binary classifier exported from the offline
// training job.
type LogisticRegression struct {
	FeatureNames []string  `json:"feature_names"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Classes      []int     `json:"classes"`
}

func (lr *LogisticRegression) Predict(ctx context.Context, row Row) (int, error) {
	if len(lr.Coefficients) == 0 {
		return 0, errors.New("model not trained")
	}
	decision := lr.Intercept
	for i, name := range lr.FeatureNames {
		value, ok := row.Lookup(name)
		if !ok {
			return 0, fmt.Errorf("feature %q missing from input row", name)
		}
		decision += lr.Coefficients[i] * value
	}
	if decision > 0 {
		return lr.Classes[1], nil
	}
	return lr.Classes[0], nil
}

func (lr *LogisticRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var model LogisticRegression
	if err := json.Unmarshal(payload, &model); err != nil {
		return fmt.Errorf("decode logistic regression %s: %w", path, err)
	}
	if len(model.Classes) == 0 {
		model.Classes = []int{0, 1}
	}
	if err := model.validate(); err != nil {
		return fmt.Errorf("invalid logistic regression %s: %w", path, err)
	}
	*lr = model
	return nil
}

func (lr *LogisticRegression) validate() error {
	if len(lr.Coefficients) == 0 {
		return errors.New("no coefficients")
	}
	if len(lr.FeatureNames) != len(lr.Coefficients) {
		return fmt.Errorf("%d feature names for %d coefficients", len(lr.FeatureNames), len(lr.Coefficients))
	}
	if len(lr.Classes) != 2 {
		return fmt.Errorf("binary model needs 2 classes, got %d", len(lr.Classes))
	}
	return nil
}
