package ml

import "fmt"

// FeatureCount is the length of a clinical feature vector.
const FeatureCount = 13

// FeatureNames returns the column names in the order the model was trained on.
func FeatureNames() []string {
	return []string{
		"age",
		"sex",
		"cp",
		"trestbps",
		"chol",
		"fbs",
		"restecg",
		"thalach",
		"exang",
		"oldpeak",
		"slope",
		"ca",
		"thal",
	}
}

// Row is a single named record handed to a classifier.
type Row struct {
	Columns []string
	Values  []float64
}

// NewRow binds values positionally to FeatureNames.
func NewRow(values []float64) (Row, error) {
	if len(values) != FeatureCount {
		return Row{}, fmt.Errorf("row has %d values, want %d", len(values), FeatureCount)
	}
	return Row{
		Columns: FeatureNames(),
		Values:  append([]float64(nil), values...),
	}, nil
}

// Lookup returns the value bound to column name.
func (r Row) Lookup(name string) (float64, bool) {
	for i, column := range r.Columns {
		if column == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return 0, false
}
