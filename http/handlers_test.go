package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"heartapi/history"
	"heartapi/ml"
	"heartapi/monitoring"
	"heartapi/predictor"
)

const (
	testOrigin   = "http://localhost:5173"
	snapshotPath = "../ml/testdata/heart_lr.json"
)

type testServer struct {
	handler http.Handler
	history *history.Log
	metrics *monitoring.Metrics
}

func newTestServer(t *testing.T, model ml.Classifier, withHistory bool) *testServer {
	t.Helper()
	var log *history.Log
	if withHistory {
		log = history.NewLog()
	}
	metrics := monitoring.NewMetrics()
	service, err := predictor.New(model, predictor.Options{History: log, CacheSize: 16, Metrics: metrics})
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Service:       service,
			History:       log,
			Metrics:       metrics,
			Logger:        zap.NewNop(),
			AllowedOrigin: testOrigin,
		}),
		history: log,
		metrics: metrics,
	}
}

func loadSnapshot(t *testing.T) ml.Classifier {
	t.Helper()
	model, err := ml.LoadModel(ml.TypeLogisticRegression, snapshotPath)
	require.NoError(t, err)
	return model
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestHomeHandler(t *testing.T) {
	for _, model := range []ml.Classifier{loadSnapshot(t), nil} {
		server := newTestServer(t, model, true)
		w := server.do(t, http.MethodGet, "/", "")

		require.Equal(t, http.StatusOK, w.Code)
		expected := `{"message":"🏥 Welcome to the Heart Disease Prediction API"}`
		assert.Equal(t, expected+"\n", w.Body.String())
	}
}

func TestPredictHandler(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	tests := []struct {
		name string
		path string
		body string
		want map[string]interface{}
	}{
		{
			name: "known snapshot vector",
			path: "/predict",
			body: `{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`,
			want: map[string]interface{}{"prediction": float64(1)},
		},
		{
			name: "negative case",
			path: "/predict",
			body: `{"features": [67,1,0,160,286,0,0,108,1,1.5,1,3,2]}`,
			want: map[string]interface{}{"prediction": float64(0)},
		},
		{
			name: "trailing slash",
			path: "/predict/",
			body: `{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`,
			want: map[string]interface{}{"prediction": float64(1)},
		},
		{
			name: "too few features",
			path: "/predict",
			body: `{"features": [1,2,3]}`,
			want: map[string]interface{}{"error": "❌ Expected 13 features, but got 3."},
		},
		{
			name: "missing features",
			path: "/predict",
			body: `{}`,
			want: map[string]interface{}{"error": "❌ Expected 13 features, but got 0."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := decode(t, server.do(t, http.MethodPost, tt.path, tt.body))
			assert.Equal(t, tt.want, payload)
		})
	}
}

func TestPredictHandlerMalformedBody(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	for _, body := range []string{`not json`, `{"features": ["a"]}`, ``} {
		payload := decode(t, server.do(t, http.MethodPost, "/predict", body))
		require.Contains(t, payload, "error")
		assert.NotContains(t, payload, "prediction")
	}
	assert.Equal(t, 0, server.history.Len())
}

func TestPredictHandlerModelNotLoaded(t *testing.T) {
	server := newTestServer(t, nil, true)

	for _, body := range []string{
		`{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`,
		`{"features": [1,2,3]}`,
		`garbage`,
	} {
		payload := decode(t, server.do(t, http.MethodPost, "/predict", body))
		assert.Equal(t, map[string]interface{}{"error": "Model not loaded. Please check the server logs."}, payload)
	}
	assert.Equal(t, 0, server.history.Len())
}

func TestHistoryHandler(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	w := server.do(t, http.MethodGet, "/history", "")
	assert.Equal(t, `{"history":[]}`+"\n", w.Body.String())

	vectors := [][]float64{
		{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1},
		{67, 1, 0, 160, 286, 0, 0, 108, 1, 1.5, 1, 3, 2},
		{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1},
	}
	for _, v := range vectors {
		body, err := json.Marshal(PredictRequest{Features: v})
		require.NoError(t, err)
		decode(t, server.do(t, http.MethodPost, "/predict", string(body)))
	}
	// rejected requests are not recorded
	decode(t, server.do(t, http.MethodPost, "/predict", `{"features": [1]}`))

	var resp HistoryResponse
	w = server.do(t, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.History, len(vectors))
	for i, entry := range resp.History {
		assert.Equal(t, vectors[i], entry.Features)
		assert.NotEmpty(t, entry.Timestamp)
	}
	assert.Equal(t, []int{1, 0, 1}, []int{resp.History[0].Prediction, resp.History[1].Prediction, resp.History[2].Prediction})
}

func TestHistoryHandlerConcurrentPredictions(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"features": [%d,1,3,145,233,1,0,150,0,2.3,0,0,1]}`, 30+i%40)
			w := server.do(t, http.MethodPost, "/predict", body)
			assert.Equal(t, http.StatusOK, w.Code)
		}(i)
	}
	wg.Wait()

	var resp HistoryResponse
	w := server.do(t, http.MethodGet, "/history", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.History, n)
}

func TestHistoryDisabled(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), false)

	payload := decode(t, server.do(t, http.MethodPost, "/predict", `{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`))
	assert.Equal(t, float64(1), payload["prediction"])

	w := server.do(t, http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom-Header")
	w := httptest.NewRecorder()
	server.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, http.MethodPost, w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-custom-header")
}

func TestCORSForeignOrigin(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	server.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", testOrigin)
	w = httptest.NewRecorder()
	server.handler.ServeHTTP(w, req)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(t, nil, true)

	w := server.do(t, http.MethodGet, "/", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	server.handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, loadSnapshot(t), true)
	decode(t, server.do(t, http.MethodPost, "/predict", `{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`))
	decode(t, server.do(t, http.MethodPost, "/predict", `{"features": [1,2,3]}`))

	w := server.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `heartapi_predictions_total{outcome="1"} 1`)
	assert.Contains(t, body, `heartapi_predictions_total{outcome="rejected"} 1`)
	assert.Contains(t, body, `heartapi_model_loaded 1`)
	assert.Contains(t, body, `heartapi_history_entries 1`)
	assert.Contains(t, body, `heartapi_http_requests_total{method="POST",route="/predict",status="200"} 2`)
}

func TestMetricsEndpointModelNotLoaded(t *testing.T) {
	server := newTestServer(t, nil, true)
	payload := decode(t, server.do(t, http.MethodPost, "/predict", `{"features": [63,1,3,145,233,1,0,150,0,2.3,0,0,1]}`))
	assert.Equal(t, "Model not loaded. Please check the server logs.", payload["error"])
	decode(t, server.do(t, http.MethodPost, "/predict", `garbage`))

	w := server.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `heartapi_predictions_total{outcome="rejected"} 2`)
	assert.Contains(t, body, `heartapi_prediction_duration_seconds_count 2`)
	assert.Contains(t, body, `heartapi_model_loaded 0`)
}
