package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"heartapi/history"
	"heartapi/predictor"
)

const welcomeMessage = "🏥 Welcome to the Heart Disease Prediction API"

// PredictRequest predict请求体
type PredictRequest struct {
	Features []float64 `json:"features"`
}

// PredictResponse predict成功响应
type PredictResponse struct {
	Prediction int `json:"prediction"`
}

// ErrorResponse 错误响应，状态码始终为200
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse 欢迎消息响应
type MessageResponse struct {
	Message string `json:"message"`
}

// HistoryResponse 历史记录响应
type HistoryResponse struct {
	History []history.Entry `json:"history"`
}

// PredictionHandler 预测接口处理器
type PredictionHandler struct {
	service *predictor.Service
	history *history.Log
	logger  *zap.Logger
}

// NewPredictionHandler 创建处理器，未启用历史记录时log为nil
func NewPredictionHandler(service *predictor.Service, log *history.Log, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{service: service, history: log, logger: logger}
}

// Home 处理 GET /
func (h *PredictionHandler) Home(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, MessageResponse{Message: welcomeMessage})
}

// Predict 处理 POST /predict，先检查模型状态再解析请求体
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if !h.service.Loaded() {
		// 由Service统一记录拒绝日志与指标
		_, err := h.service.Predict(r.Context(), nil)
		respondJSON(w, h.logger, ErrorResponse{Error: err.Error()})
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid predict request", zap.Error(err))
		respondJSON(w, h.logger, ErrorResponse{Error: err.Error()})
		return
	}

	prediction, err := h.service.Predict(r.Context(), req.Features)
	if err != nil {
		respondJSON(w, h.logger, ErrorResponse{Error: err.Error()})
		return
	}
	respondJSON(w, h.logger, PredictResponse{Prediction: prediction})
}

// History 处理 GET /history
func (h *PredictionHandler) History(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, HistoryResponse{History: h.history.Entries()})
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, logger *zap.Logger, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON", zap.Error(err))
	}
}
