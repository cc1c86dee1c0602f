package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coursesync/internal/canvas"
	"github.com/hitoshi/coursesync/internal/config"
	"github.com/hitoshi/coursesync/internal/httpapi"
	"github.com/hitoshi/coursesync/internal/security"
	"github.com/hitoshi/coursesync/internal/todoist"
)

// canvasBaseURL は環境変数の上書きを優先してCanvasのURLを決める。
func canvasBaseURL(cfg *config.Config, s *config.Settings) string {
	if cfg.CanvasBaseURL != "" {
		return cfg.CanvasBaseURL
	}
	return s.CanvasBaseURL()
}

// newHTTPClient はURLを検証し、接続先の制限付きHTTPクライアントを返す。
func newHTTPClient(cfg *config.Config, baseURL string) (*http.Client, error) {
	guard := security.NewURLGuard(cfg.AllowPrivateHosts)
	if err := guard.ValidateBaseURL(baseURL); err != nil {
		return nil, fmt.Errorf("接続先URLを検証できません %q: %w", baseURL, err)
	}
	return guard.NewHTTPClient(cfg.HTTPTimeout), nil
}

// newCanvasClient はCanvasクライアントを構築する。recはnilでもよい。
func newCanvasClient(cfg *config.Config, s *config.Settings, l *slog.Logger, rec httpapi.StatusRecorder) (*canvas.Client, error) {
	baseURL := canvasBaseURL(cfg, s)
	hc, err := newHTTPClient(cfg, baseURL)
	if err != nil {
		return nil, err
	}
	api := httpapi.NewClient(hc, httpapi.Config{
		Service:    "canvas",
		BaseURL:    baseURL,
		Token:      cfg.CanvasAPIKey,
		RatePerSec: cfg.CanvasRatePerSec,
		Burst:      1,
		MaxRetries: cfg.HTTPMaxRetries,
	}, l, rec)
	return canvas.NewClient(api, security.NewTextSanitizer(), l, baseURL)
}

// newTodoistClient はTodoistクライアントを構築する。recはnilでもよい。
func newTodoistClient(cfg *config.Config, l *slog.Logger, rec httpapi.StatusRecorder) (*todoist.Client, error) {
	hc, err := newHTTPClient(cfg, cfg.TodoistBaseURL)
	if err != nil {
		return nil, err
	}
	api := httpapi.NewClient(hc, httpapi.Config{
		Service:    "todoist",
		BaseURL:    cfg.TodoistBaseURL,
		Token:      cfg.TodoistAPIKey,
		RatePerSec: cfg.TodoistRatePerSec,
		Burst:      1,
		MaxRetries: cfg.HTTPMaxRetries,
	}, l, rec)
	return todoist.NewClient(api, l), nil
}
