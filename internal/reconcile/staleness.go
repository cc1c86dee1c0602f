package reconcile

import (
	"time"

	"github.com/hitoshi/coursesync/internal/model"
)

const (
	dateLayout          = "2006-01-02"
	floatingLayout      = "2006-01-02T15:04:05"
	normalizedUTCLayout = "2006-01-02T15:04:05Z"
)

// NormalizeTimestamp はISO-8601文字列を比較用の形に揃える。
// タイムゾーン付きの日時はUTCに変換し、日付のみとタイムゾーン無しの日時はそのまま返す。
func NormalizeTimestamp(value string) (string, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(normalizedUTCLayout), nil
	}
	if _, err := time.Parse(floatingLayout, value); err == nil {
		return value, nil
	}
	if _, err := time.Parse(dateLayout, value); err == nil {
		return value, nil
	}
	return "", model.NewMalformedTimestampError(value)
}

// NeedsUpdate は一致したタスクの期限を課題の期限に合わせる必要があるかを判定する。
// 課題に期限が無い場合は、タスク側の期限に関わらず更新しない。
func NeedsUpdate(a *model.Assignment, task *model.Task) (bool, error) {
	if !a.HasDueDate() {
		return false, nil
	}

	want, err := NormalizeTimestamp(*a.DueAt)
	if err != nil {
		return false, err
	}

	if task.Due == nil || *task.Due == "" {
		return true, nil
	}

	got, err := NormalizeTimestamp(*task.Due)
	if err != nil {
		return false, err
	}
	return want != got, nil
}
