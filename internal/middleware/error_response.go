package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/coursesync/internal/model"
)

// ErrorResponseBody は運用サーバのエラーレスポンス。
// 原因カテゴリと対処方法に加え、ログと突き合わせるためのリクエストIDを含む。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusForCategory はエラーカテゴリに対応するHTTPステータスを返す。
func StatusForCategory(category string) int {
	switch category {
	case model.CategorySync:
		return http.StatusNotFound
	case model.CategoryConfig:
		return http.StatusServiceUnavailable
	case model.CategoryAuth, model.CategoryRemote:
		// 上流のCanvas/Todoist側の問題
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はカテゴリから決まるステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForCategory(apiErr.Category))
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
