package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotPath = "testdata/heart_lr.json"

func TestLogisticRegressionSnapshot(t *testing.T) {
	model := &LogisticRegression{}
	require.NoError(t, model.Load(snapshotPath))

	tests := []struct {
		name     string
		features []float64
		want     int
	}{
		{name: "typical angina patient", features: []float64{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1}, want: 1},
		{name: "three vessels reversible defect", features: []float64{67, 1, 0, 160, 286, 0, 0, 108, 1, 1.5, 1, 3, 2}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := NewRow(tt.features)
			require.NoError(t, err)
			label, err := model.Predict(context.Background(), row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, label)
		})
	}
}

func TestLogisticRegressionMissingColumn(t *testing.T) {
	model := &LogisticRegression{}
	require.NoError(t, model.Load(snapshotPath))

	row := Row{Columns: []string{"age"}, Values: []float64{63}}
	_, err := model.Predict(context.Background(), row)
	assert.EqualError(t, err, `feature "sex" missing from input row`)
}

func TestLogisticRegressionInvalidArtifact(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `joblib`},
		{name: "no coefficients", payload: `{"feature_names": []}`},
		{name: "length mismatch", payload: `{"feature_names": ["age"], "coefficients": [0.1, 0.2]}`},
		{name: "multiclass", payload: `{"feature_names": ["age"], "coefficients": [0.1], "classes": [0, 1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.payload), 0o600))
			assert.Error(t, (&LogisticRegression{}).Load(path))
		})
	}
}

func TestLogisticRegressionDefaultClasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feature_names": ["age"], "coefficients": [1], "intercept": -50}`), 0o600))

	model := &LogisticRegression{}
	require.NoError(t, model.Load(path))
	assert.Equal(t, []int{0, 1}, model.Classes)
}
