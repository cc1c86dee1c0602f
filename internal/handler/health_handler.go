package handler

import (
	"encoding/json"
	"net/http"
)

// HealthChecker はプロセスが同期を実行できる状態かを確認するインターフェース。
type HealthChecker interface {
	Healthy() error
}

// HealthHandler は /health を処理する。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checkerがnilなら常に正常を返す。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ServeHTTP は状態をJSONで返す。異常時は503を返す。
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.checker != nil {
		if err := h.checker.Healthy(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}

	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
