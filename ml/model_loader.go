package ml

import (
	"errors"
	"fmt"
)

const (
	TypeLogisticRegression = "logistic_regression"
	TypeDecisionTree       = "decision_tree"
)

var ErrUnsupportedModelType = errors.New("unsupported model type")

func LoadModel(modelType, path string) (Classifier, error) {
	var model Artifact
	switch modelType {
	case TypeLogisticRegression:
		model = &LogisticRegression{}
	case TypeDecisionTree:
		model = &DecisionTree{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModelType, modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
