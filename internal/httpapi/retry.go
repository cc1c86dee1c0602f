package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

// Result はHTTPステータスコードに基づくリクエスト結果の分類。
type Result int

const (
	// ResultOK は成功（2xx）。
	ResultOK Result = iota
	// ResultUnauthorized は認証情報の拒否（401）。実行全体を停止する。
	ResultUnauthorized
	// ResultRetry はバックオフ後の再試行が必要なステータス（429/5xx）。
	ResultRetry
	// ResultFail は再試行しても結果が変わらないステータス（その他の4xx）。
	ResultFail
)

const (
	// defaultRetryBaseDelay は指数バックオフの初回遅延。
	defaultRetryBaseDelay = 500 * time.Millisecond
	// maxRetryDelay は1回の待機の上限。Retry-Afterもこの値で切り詰める。
	maxRetryDelay = 30 * time.Second
)

// ClassifyStatus はHTTPステータスコードをリクエスト結果に分類する。
func ClassifyStatus(statusCode int) Result {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ResultOK
	case statusCode == http.StatusUnauthorized:
		return ResultUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return ResultRetry
	case statusCode >= 500:
		return ResultRetry
	default:
		return ResultFail
	}
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// attemptは0始まり。baseから2倍ずつ増加し、maxRetryDelayで頭打ちになる。
func CalculateBackoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// retryAfter はRetry-Afterヘッダ（秒数）を解釈する。
// ヘッダが無いか解釈できない場合は ok=false を返す。
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d, true
}
