// Package todoist はTodoist REST APIに対するプロジェクトとタスクの読み書きを提供する。
package todoist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/hitoshi/coursesync/internal/model"
)

// DefaultBaseURL はTodoist REST APIの既定URL。
const DefaultBaseURL = "https://api.todoist.com/rest/v2"

// dateOnlyLength は "YYYY-MM-DD" 形式の日付の長さ。
const dateOnlyLength = len("2006-01-02")

// API はJSONを送受信するHTTPクライアントのインターフェース。
// httpapi.Client が実装する。
type API interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, out any) (next string, err error)
	SendJSON(ctx context.Context, method, rawURL string, header http.Header, body, out any) error
}

// Client はTodoist APIのクライアント。
type Client struct {
	api       API
	logger    *slog.Logger
	requestID func() string // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(api API, logger *slog.Logger) *Client {
	return &Client{
		api:       api,
		logger:    logger,
		requestID: uuid.NewString,
	}
}

// project はAPIのプロジェクト表現。
type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// task はAPIのタスク表現。
type task struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ProjectID string `json:"project_id"`
	Due       *due   `json:"due"`
}

// due はAPIの期限表現。時刻付きの場合のみDatetimeが入る。
type due struct {
	Date     string `json:"date"`
	Datetime string `json:"datetime"`
	String   string `json:"string"`
	Timezone string `json:"timezone"`
}

// taskRequest はタスク作成・更新のリクエストボディ。
type taskRequest struct {
	Content     string   `json:"content,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	DueDatetime string   `json:"due_datetime,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// ListProjects はユーザーの全プロジェクトを取得する。
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var raw []project
	if err := c.getAll(ctx, "projects", &raw); err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}

	projects := make([]model.Project, 0, len(raw))
	for _, p := range raw {
		projects = append(projects, model.Project{ID: p.ID, Name: p.Name})
	}
	c.logger.Info("Todoistのプロジェクトを読み込みました", slog.Int("project_count", len(projects)))
	return projects, nil
}

// ListTasks はユーザーの未完了タスクを全件取得する。
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var raw []task
	if err := c.getAll(ctx, "tasks", &raw); err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}

	tasks := make([]model.Task, 0, len(raw))
	for _, t := range raw {
		tasks = append(tasks, t.toModel())
	}
	c.logger.Info("Todoistのタスクを読み込みました", slog.Int("task_count", len(tasks)))
	return tasks, nil
}

// CreateProject は指定した名前のプロジェクトを作成する。
func (c *Client) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	var created project
	body := map[string]string{"name": name}
	if err := c.api.SendJSON(ctx, http.MethodPost, "projects", c.writeHeader(), body, &created); err != nil {
		return nil, fmt.Errorf("プロジェクト %q の作成に失敗しました: %w", name, err)
	}
	return &model.Project{ID: created.ID, Name: created.Name}, nil
}

// CreateTask はタスクを作成する。
func (c *Client) CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error) {
	req := taskRequest{
		Content:   draft.Content,
		ProjectID: draft.ProjectID,
		Priority:  draft.Priority,
		Labels:    draft.Labels,
	}
	if draft.Due != nil {
		setDue(&req, *draft.Due)
	}

	var created task
	if err := c.api.SendJSON(ctx, http.MethodPost, "tasks", c.writeHeader(), req, &created); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	result := created.toModel()
	return &result, nil
}

// UpdateTask はタスクの期限を更新する。
func (c *Client) UpdateTask(ctx context.Context, taskID string, dueAt string) (*model.Task, error) {
	var req taskRequest
	setDue(&req, dueAt)

	var updated task
	path := "tasks/" + url.PathEscape(taskID)
	if err := c.api.SendJSON(ctx, http.MethodPost, path, c.writeHeader(), req, &updated); err != nil {
		return nil, fmt.Errorf("タスク %s の更新に失敗しました: %w", taskID, err)
	}
	result := updated.toModel()
	return &result, nil
}

// getAll は一覧APIを呼び出して結果をoutにデコードする。
func (c *Client) getAll(ctx context.Context, path string, out any) error {
	next, err := c.api.GetJSON(ctx, path, nil, out)
	if err != nil {
		return err
	}
	if next != "" {
		// REST v2 の一覧APIはページ分割しない
		c.logger.Warn("想定外のページ送りを無視します", slog.String("path", path), slog.String("next", next))
	}
	return nil
}

// writeHeader は書き込み要求用のヘッダを返す。
// X-Request-Idは再試行時の二重作成を防ぐための冪等キー。
func (c *Client) writeHeader() http.Header {
	h := http.Header{}
	h.Set("X-Request-Id", c.requestID())
	return h
}

// setDue は期限の形式に応じて日付または日時のフィールドを設定する。
func setDue(req *taskRequest, value string) {
	if len(value) == dateOnlyLength {
		req.DueDate = value
		return
	}
	req.DueDatetime = value
}

// toModel はAPIのタスク表現をドメインモデルに変換する。
func (t task) toModel() model.Task {
	result := model.Task{ID: t.ID, Content: t.Content, ProjectID: t.ProjectID}
	if t.Due != nil {
		switch {
		case t.Due.Datetime != "":
			v := t.Due.Datetime
			result.Due = &v
		case t.Due.Date != "":
			v := t.Due.Date
			result.Due = &v
		}
	}
	return result
}
