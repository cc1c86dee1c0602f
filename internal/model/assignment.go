// Package model はドメインモデルを定義する。
package model

import "time"

// WorkflowStateUnsubmitted は未提出の提出状態を表す。
const WorkflowStateUnsubmitted = "unsubmitted"

// SubmissionTypeNotGraded は採点対象外の課題を示す提出タイプ。
const SubmissionTypeNotGraded = "not_graded"

// Assignment はLMSの課題を表す。
// 1回の実行の間だけ保持されるスナップショットであり、変更しない。
type Assignment struct {
	ID              int64       `json:"id"`
	CourseID        int64       `json:"course_id"`
	Name            string      `json:"name"`
	HTMLURL         string      `json:"html_url"`
	DueAt           *string     `json:"due_at"`
	UnlockAt        *time.Time  `json:"unlock_at"`
	LockedForUser   bool        `json:"locked_for_user"`
	LockExplanation string      `json:"lock_explanation"`
	SubmissionTypes []*string   `json:"submission_types"`
	Submission      *Submission `json:"submission"`
}

// Submission は課題に対するユーザーの提出状態を表す。
type Submission struct {
	WorkflowState string `json:"workflow_state"`
}

// SubmissionTag は先頭の提出タイプを返す。
// 提出タイプが空またはnullの場合は ok=false を返す。
func (a *Assignment) SubmissionTag() (tag string, ok bool) {
	if len(a.SubmissionTypes) == 0 || a.SubmissionTypes[0] == nil {
		return "", false
	}
	return *a.SubmissionTypes[0], true
}

// IsUnsubmitted は課題が未提出かを返す。
// 提出情報が含まれない場合は提出物が存在しないものとして未提出扱いにする。
func (a *Assignment) IsUnsubmitted() bool {
	if a.Submission == nil {
		return true
	}
	return a.Submission.WorkflowState == WorkflowStateUnsubmitted
}

// HasDueDate は期限が設定されているかを返す。
func (a *Assignment) HasDueDate() bool {
	return a.DueAt != nil && *a.DueAt != ""
}
