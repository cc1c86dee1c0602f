package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/coursesync/internal/model"
)

// DefaultCanvasURL は初期設定で使うCanvasのURL。
const DefaultCanvasURL = "https://canvas.instructure.com"

// Settings は利用者が編集する同期設定のドキュメント。
// 1回の同期の開始時に読み込み、実行中は読み取り専用として扱う。
// JSONはYAMLとして読めるため、旧形式の config.json もそのまま読み込める。
type Settings struct {
	CanvasAPIHeading         string   `yaml:"canvas_api_heading"`
	TodoistTaskPriority      int      `yaml:"todoist_task_priority"`
	TodoistTaskLabels        []string `yaml:"todoist_task_labels"`
	SyncNullAssignments      bool     `yaml:"sync_null_assignments"`
	SyncLockedAssignments    bool     `yaml:"sync_locked_assignments"`
	SyncNoDueDateAssignments bool     `yaml:"sync_no_due_date_assignments"`
	Courses                  []int64  `yaml:"courses"`
}

// DefaultSettings は初期設定の値を返す。
func DefaultSettings() Settings {
	return Settings{
		CanvasAPIHeading:         DefaultCanvasURL,
		TodoistTaskPriority:      1,
		TodoistTaskLabels:        []string{},
		SyncNullAssignments:      true,
		SyncLockedAssignments:    true,
		SyncNoDueDateAssignments: true,
		Courses:                  []int64{},
	}
}

// LoadSettings は設定ドキュメントを読み込んで検証する。
// ドキュメントに無いキーは初期設定の値になる。
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.NewInvalidSettingsError("設定ファイルがありません"), path)
		}
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", model.NewInvalidSettingsError("設定ファイルを解釈できません"), err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings は設定ドキュメントを書き出す。
// 一時ファイルに書いてからリネームするため、監視側が書きかけを読むことはない。
func SaveSettings(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("設定のエンコードに失敗しました: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".coursesync-*.yaml")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("設定ファイルの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("設定ファイルの権限設定に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("設定ファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("設定ファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

// Validate は設定値の範囲を検証する。
func (s *Settings) Validate() error {
	if s.TodoistTaskPriority < 1 || s.TodoistTaskPriority > 4 {
		return model.NewInvalidSettingsError(fmt.Sprintf("todoist_task_priority は1から4の範囲で指定してください: %d", s.TodoistTaskPriority))
	}

	u, err := url.Parse(strings.TrimSpace(s.CanvasAPIHeading))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return model.NewInvalidSettingsError(fmt.Sprintf("canvas_api_heading がURLではありません: %q", s.CanvasAPIHeading))
	}

	for _, label := range s.TodoistTaskLabels {
		if strings.TrimSpace(label) == "" {
			return model.NewInvalidSettingsError("todoist_task_labels に空のラベルがあります")
		}
	}

	seen := make(map[int64]struct{}, len(s.Courses))
	for _, id := range s.Courses {
		if _, ok := seen[id]; ok {
			return model.NewInvalidSettingsError(fmt.Sprintf("courses に重複したIDがあります: %d", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

// CanvasBaseURL はCanvasのベースURLを末尾のスラッシュを除いて返す。
func (s *Settings) CanvasBaseURL() string {
	return strings.TrimRight(strings.TrimSpace(s.CanvasAPIHeading), "/")
}

// HasCourseSelection はコースが選択済みかを返す。
func (s *Settings) HasCourseSelection() bool {
	return len(s.Courses) > 0
}
