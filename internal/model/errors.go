package model

import (
	"errors"
	"fmt"
)

// 同期処理で判定に使うセンチネルエラー。
var (
	// ErrUnauthorized は認証情報が拒否されたことを示す。実行全体を停止する。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnknownCourse はコースIDがコース名に解決できないことを示す。
	ErrUnknownCourse = errors.New("unknown course")
	// ErrUnknownProject はコース名がプロジェクトIDに解決できないことを示す。
	ErrUnknownProject = errors.New("unknown project")
	// ErrDuplicateTask は同じ内容・同じプロジェクトのタスクが複数存在することを示す。
	ErrDuplicateTask = errors.New("duplicate matching tasks")
	// ErrMalformedTimestamp はISO-8601として解釈できない日時を示す。
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	// ErrInvalidSettings は設定ドキュメントが欠けているか不正であることを示す。
	ErrInvalidSettings = errors.New("invalid settings")
)

// APIError は統一エラーフォーマットを表す。
// ログとサマリーに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: Category* 定数のいずれか
	Action   string // ユーザー向け対処方法
	Err      error  // 判定用のセンチネルエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap はerrors.Is/Asのために内包するエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// エラーカテゴリ
const (
	CategoryAuth   = "auth"
	CategoryData   = "data"
	CategoryRemote = "remote"
	CategoryConfig = "config"
	CategorySync   = "sync"
	CategorySystem = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUnknownCourse      = "UNKNOWN_COURSE"
	ErrCodeUnknownProject     = "UNKNOWN_PROJECT"
	ErrCodeDuplicateTask      = "DUPLICATE_TASK"
	ErrCodeMalformedTimestamp = "MALFORMED_TIMESTAMP"
	ErrCodeRemoteStatus       = "REMOTE_STATUS"
	ErrCodeInvalidSettings    = "INVALID_SETTINGS"
	ErrCodeNoRunYet           = "NO_RUN_YET"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// serviceには "canvas" や "todoist" などの接続先名を指定する。
func NewUnauthorizedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("%s が認証情報を拒否しました", service),
		Category: CategoryAuth,
		Action:   "APIキーを確認してください。",
		Err:      ErrUnauthorized,
	}
}

// NewUnknownCourseError はコース未解決エラーを生成する。
func NewUnknownCourseError(courseID int64) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCourse,
		Message:  fmt.Sprintf("コースIDに対応するコース名がありません: %d", courseID),
		Category: CategoryData,
		Action:   "コースの選択を見直してください。",
		Err:      ErrUnknownCourse,
	}
}

// NewUnknownProjectError はプロジェクト未解決エラーを生成する。
func NewUnknownProjectError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProject,
		Message:  fmt.Sprintf("コース名に対応するプロジェクトがありません: %s", name),
		Category: CategoryData,
		Action:   "プロジェクトの作成に失敗していないか確認してください。",
		Err:      ErrUnknownProject,
	}
}

// NewDuplicateTaskError は一致タスク重複エラーを生成する。
func NewDuplicateTaskError(content string, projectID string, count int) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTask,
		Message:  fmt.Sprintf("同じ内容のタスクが%d件あります: %s (project_id=%s)", count, content, projectID),
		Category: CategoryData,
		Action:   "重複したタスクを手動で整理してください。",
		Err:      ErrDuplicateTask,
	}
}

// NewMalformedTimestampError は日時形式エラーを生成する。
func NewMalformedTimestampError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedTimestamp,
		Message:  fmt.Sprintf("日時の形式が不正です: %q", value),
		Category: CategoryData,
		Action:   "課題またはタスクの期限を確認してください。",
		Err:      ErrMalformedTimestamp,
	}
}

// NewRemoteStatusError はリモートAPIの異常ステータスエラーを生成する。
func NewRemoteStatusError(service string, statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteStatus,
		Message:  fmt.Sprintf("%s がステータス %d を返しました", service, statusCode),
		Category: CategoryRemote,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidSettingsError は設定ドキュメントの検証エラーを生成する。
func NewInvalidSettingsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSettings,
		Message:  fmt.Sprintf("設定が不正です: %s", reason),
		Category: CategoryConfig,
		Action:   "coursesync init で設定ファイルを作り直してください。",
		Err:      ErrInvalidSettings,
	}
}

// NewNoRunYetError は同期がまだ一度も完了していないことを示すエラーを生成する。
func NewNoRunYetError() *APIError {
	return &APIError{
		Code:     ErrCodeNoRunYet,
		Message:  "完了した同期がまだありません。",
		Category: CategorySync,
		Action:   "次回の同期の完了を待ってください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "ログを確認してください。",
	}
}
