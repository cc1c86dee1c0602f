package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/coursesync/internal/middleware"
	"github.com/hitoshi/coursesync/internal/model"
	"github.com/hitoshi/coursesync/internal/worker/syncjob"
)

// LatestRunProvider は最後に完了した同期のレポートを返すインターフェース。
type LatestRunProvider interface {
	Latest() (*syncjob.Report, bool)
}

// RunsHandler は同期結果のエンドポイントを処理する。
type RunsHandler struct {
	runs LatestRunProvider
}

// NewRunsHandler はRunsHandlerを生成する。
func NewRunsHandler(runs LatestRunProvider) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// Latest は GET /runs/latest を処理する。
// まだ同期が完了していない場合は404を返す。
func (h *RunsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	report, ok := h.runs.Latest()
	if !ok {
		middleware.WriteAPIError(w, r, model.NewNoRunYetError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
