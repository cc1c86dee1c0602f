// Package httpapi はBearerトークンで認証するREST APIの共通クライアントを提供する。
// レート制限、429/5xxの再試行、401の認証エラー化、Linkヘッダによるページ送りを含む。
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/coursesync/internal/model"
)

const (
	// userAgent はすべてのリクエストに付与するUser-Agent。
	userAgent = "coursesync/1.0"
	// maxResponseSize はレスポンスボディの読み取り上限（10MB）。
	maxResponseSize = 10 << 20
)

// StatusRecorder はHTTPレスポンスをメトリクスに記録するインターフェース。
type StatusRecorder interface {
	RecordHTTPStatus(service string, statusCode int)
	RecordRequestLatency(service string, duration time.Duration)
}

// Config はクライアントの設定。
type Config struct {
	// Service はログとエラーに使う接続先名（例: "canvas"）。
	Service string
	// BaseURL は相対パスの解決に使うベースURL。
	BaseURL string
	// Token はBearer認証トークン。
	Token string
	// RatePerSec は1秒あたりの最大リクエスト数。0以下なら制限しない。
	RatePerSec float64
	// Burst はレート制限のバーストサイズ。
	Burst int
	// MaxRetries は429/5xx/通信エラー時の最大再試行回数。
	MaxRetries int
	// RetryBaseDelay は再試行の初回待機時間。
	RetryBaseDelay time.Duration
}

// Request は1回のAPI呼び出しの内容。
type Request struct {
	Method string
	// URL は絶対URLまたはBaseURLからの相対パス。
	URL    string
	Query  url.Values
	Header http.Header
	// Body はJSONエンコードして送信する。nilなら本文なし。
	Body any
}

// Response はAPI呼び出しの結果。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client は共通のREST APIクライアント。
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    StatusRecorder
	sleep      func(ctx context.Context, d time.Duration) error // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewClient(httpClient *http.Client, config Config, logger *slog.Logger, metrics StatusRecorder) *Client {
	limit := rate.Inf
	if config.RatePerSec > 0 {
		limit = rate.Limit(config.RatePerSec)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepContext,
	}
}

// Do はリクエストを送信し、2xxのレスポンスを返す。
// 401は ErrUnauthorized を内包するエラー、その他の非2xxは再試行後にエラーを返す。
// 同じリクエストは同じヘッダで再送するため、冪等キーは呼び出し側がHeaderに設定する。
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := c.resolve(req.URL, req.Query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryDelay(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, req, target, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("APIリクエストに失敗しました",
				slog.String("service", c.config.Service),
				slog.String("method", req.Method),
				slog.String("url", target),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch ClassifyStatus(resp.StatusCode) {
		case ResultOK:
			return resp, nil
		case ResultUnauthorized:
			return nil, model.NewUnauthorizedError(c.config.Service)
		case ResultRetry:
			lastErr = &statusError{service: c.config.Service, resp: resp}
			c.logger.Warn("APIが再試行対象のステータスを返しました",
				slog.String("service", c.config.Service),
				slog.String("method", req.Method),
				slog.String("url", target),
				slog.Int("http_status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
			)
			continue
		default:
			return nil, &statusError{service: c.config.Service, resp: resp}
		}
	}

	return nil, fmt.Errorf("%s へのリクエストが%d回失敗しました: %w", c.config.Service, c.config.MaxRetries+1, lastErr)
}

// GetJSON はGETリクエストの結果をoutにデコードし、次ページのURLを返す。
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) (string, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query})
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return "", fmt.Errorf("%s のレスポンスJSONのパースに失敗しました: %w", c.config.Service, err)
	}
	return NextLink(resp.Header), nil
}

// SendJSON はJSONボディ付きのリクエストを送信し、結果をoutにデコードする。
// outがnilの場合はレスポンスボディを読み捨てる。
func (c *Client) SendJSON(ctx context.Context, method, rawURL string, header http.Header, body, out any) error {
	resp, err := c.Do(ctx, Request{Method: method, URL: rawURL, Header: header, Body: body})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s のレスポンスJSONのパースに失敗しました: %w", c.config.Service, err)
	}
	return nil
}

// send は1回分のHTTPリクエストを送信してレスポンスを読み取る。
func (c *Client) send(ctx context.Context, req Request, target string, payload []byte) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.config.Token))
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(c.config.Service, resp.StatusCode)
		c.metrics.RecordRequestLatency(c.config.Service, duration)
	}
	c.logger.Debug("APIリクエスト完了",
		slog.String("service", c.config.Service),
		slog.String("method", req.Method),
		slog.String("url", target),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// resolve はBaseURLを基準にURLを解決し、クエリを付与する。
func (c *Client) resolve(rawURL string, query url.Values) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("URLのパースに失敗しました: %w", err)
	}
	if !ref.IsAbs() {
		base, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/")
		if err != nil {
			return "", fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
		}
		ref = base.ResolveReference(&url.URL{Path: strings.TrimLeft(ref.Path, "/"), RawQuery: ref.RawQuery})
	}
	if len(query) > 0 {
		q := ref.Query()
		for k, values := range query {
			for _, v := range values {
				q.Add(k, v)
			}
		}
		ref.RawQuery = q.Encode()
	}
	return ref.String(), nil
}

// retryDelay は再試行までの待機時間を決める。Retry-Afterがあればそれを優先する。
func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	if se, ok := lastErr.(*statusError); ok {
		if d, ok := retryAfter(se.resp.Header); ok {
			return d
		}
	}
	return CalculateBackoff(attempt, c.config.RetryBaseDelay)
}

// statusError は非2xxレスポンスを表す。
type statusError struct {
	service string
	resp    *Response
}

func (e *statusError) Error() string {
	return model.NewRemoteStatusError(e.service, e.resp.StatusCode).Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
