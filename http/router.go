package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"heartapi/history"
	"heartapi/monitoring"
	"heartapi/predictor"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Service *predictor.Service
	// History 非空时注册 GET /history
	History *history.Log
	// Stream 非空时注册 GET /history/stream
	Stream        *monitoring.HistoryHub
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
	AllowedOrigin string
}

// NewRouter 注册所有处理器
func NewRouter(config RouterConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(
		RequestIDMiddleware,
		LoggerMiddleware(logger),
		MetricsMiddleware(config.Metrics),
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigin),
		chimiddleware.StripSlashes,
	)

	handler := NewPredictionHandler(config.Service, config.History, logger)
	router.Get("/", handler.Home)
	router.Post("/predict", handler.Predict)
	if config.History != nil {
		router.Get("/history", handler.History)
		if config.Stream != nil {
			router.Get("/history/stream", config.Stream.ServeWS)
		}
	}
	if config.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", config.Metrics.Handler())
	}
	return router
}
