// Package reconcile は課題一覧とタスク一覧の突き合わせロジックを提供する。
// フィルタ、マッチャー、期限差分検出、リコンサイラの4段で構成され、
// 各段は独立してテストできる純粋な関数または小さな構造体として実装する。
package reconcile

import (
	"time"

	"github.com/hitoshi/coursesync/internal/model"
)

// unlockGrace はロック解除予定を「まだロック中」と見なすまでの猶予。
const unlockGrace = 24 * time.Hour

// SkipReason は課題を同期対象外とする理由。
type SkipReason string

const (
	// SkipNone は同期対象であることを示す。
	SkipNone SkipReason = ""
	// SkipUngraded は採点対象外または提出不可の課題。
	SkipUngraded SkipReason = "ungraded"
	// SkipNoDueDate は期限の無い課題。
	SkipNoDueDate SkipReason = "no_due_date"
	// SkipNotYetUnlocked はロック解除が翌日より後の課題。
	SkipNotYetUnlocked SkipReason = "not_yet_unlocked"
	// SkipLocked はロックされ解除予定の無い課題。
	SkipLocked SkipReason = "locked"
)

// FilterConfig は同期対象フィルタの設定。
type FilterConfig struct {
	SyncNullAssignments      bool
	SyncLockedAssignments    bool
	SyncNoDueDateAssignments bool
}

// Decision はフィルタの判定結果。
type Decision struct {
	Include bool
	Reason  SkipReason
}

// Evaluate は課題が同期対象かを判定する。
// 規則は上から順に評価し、最初に該当したものを理由として返す。
func Evaluate(a *model.Assignment, cfg FilterConfig, now time.Time) Decision {
	if !cfg.SyncNullAssignments && isUngraded(a) {
		return Decision{Reason: SkipUngraded}
	}
	if !cfg.SyncNoDueDateAssignments && !a.HasDueDate() {
		return Decision{Reason: SkipNoDueDate}
	}
	if !cfg.SyncLockedAssignments {
		if a.UnlockAt != nil && a.UnlockAt.After(now.Add(unlockGrace)) {
			return Decision{Reason: SkipNotYetUnlocked}
		}
		if a.LockedForUser && a.UnlockAt == nil {
			return Decision{Reason: SkipLocked}
		}
	}
	return Decision{Include: true}
}

func isUngraded(a *model.Assignment) bool {
	tag, ok := a.SubmissionTag()
	return !ok || tag == model.SubmissionTypeNotGraded
}
