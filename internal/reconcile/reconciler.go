package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/coursesync/internal/model"
)

// TaskDispatcher はタスクの作成と期限更新を行う送信先のインターフェース。
type TaskDispatcher interface {
	CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error)
	UpdateTask(ctx context.Context, taskID string, due string) (*model.Task, error)
}

// MetricsRecorder は処理結果をメトリクスに記録するインターフェース。
type MetricsRecorder interface {
	RecordOutcome(outcome string)
}

// RunInput は1回の突き合わせに必要な入力一式。
// 実行開始時に構築し、実行終了とともに破棄する。
type RunInput struct {
	Assignments []model.Assignment
	Tasks       []model.Task
	Courses     model.CourseDirectory
	Projects    model.ProjectDirectory
	Filter      FilterConfig
	Priority    int
	Labels      []string
}

// Reconciler は課題ごとに作成・更新・スキップを判定し、送信先へ反映する。
type Reconciler struct {
	dispatcher TaskDispatcher
	metrics    MetricsRecorder
	logger     *slog.Logger
	now        func() time.Time
	dryRun     bool
}

// Option はReconcilerの任意設定。
type Option func(*Reconciler)

// WithMetrics は処理結果を記録するメトリクスを設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithDryRun は判定のみ行い、送信先への反映を行わないモードにする。
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(dispatcher TaskDispatcher, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile は入力の課題を順番に処理し、集計結果を返す。
// 課題単位の失敗はログとカウンタに変換して次の課題へ進む。
// 認証エラーとコンテキストのキャンセルのみ、その時点までの集計とともに返す。
func (r *Reconciler) Reconcile(ctx context.Context, in RunInput) (RunStats, error) {
	stats := RunStats{Total: len(in.Assignments)}
	now := r.now()

	for i := range in.Assignments {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		a := &in.Assignments[i]
		outcome, err := r.reconcileOne(ctx, a, in, now)
		stats.record(outcome)
		if r.metrics != nil {
			r.metrics.RecordOutcome(string(outcome))
		}
		if err != nil && errors.Is(err, model.ErrUnauthorized) {
			return stats, err
		}
	}

	return stats, nil
}

// reconcileOne は1件の課題を処理する。
// 返すエラーは認証エラーの判定にのみ使い、それ以外はここでログに出す。
func (r *Reconciler) reconcileOne(ctx context.Context, a *model.Assignment, in RunInput, now time.Time) (Outcome, error) {
	logger := r.logger.With(
		slog.Int64("assignment_id", a.ID),
		slog.Int64("course_id", a.CourseID),
		slog.String("assignment_name", a.Name),
	)

	// 1. コース名とプロジェクトIDの解決
	courseName, projectID, err := ResolveProject(a, in.Courses, in.Projects)
	if err != nil {
		logger.Error("プロジェクトを解決できないため課題をスキップします", slog.String("error", err.Error()))
		return OutcomeFailed, nil
	}
	logger = logger.With(slog.String("course_name", courseName))

	// 2. 既存タスクの検索
	task, err := FindMatch(a, projectID, in.Tasks)
	if err != nil {
		logger.Warn("課題に一致するタスクが重複しているため変更しません", slog.String("error", err.Error()))
		return OutcomeAnomaly, nil
	}

	decision := Evaluate(a, in.Filter, now)

	// 3. 既存タスクあり: フィルタは記録のみ、期限差分があれば更新
	if task != nil {
		if !decision.Include {
			logger.Info("同期済みの課題が現在の設定では対象外です",
				slog.String("skip_reason", string(decision.Reason)),
				slog.String("task_id", task.ID),
			)
		}

		stale, err := NeedsUpdate(a, task)
		if err != nil {
			logger.Warn("期限を比較できないため変更しません",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			return OutcomeAnomaly, nil
		}
		if !stale {
			return OutcomeAlreadySynced, nil
		}

		logger.Info("課題の期限を更新します",
			slog.String("task_id", task.ID),
			slog.String("due", *a.DueAt),
		)
		if r.dryRun {
			return OutcomeUpdated, nil
		}
		if _, err := r.dispatcher.UpdateTask(ctx, task.ID, *a.DueAt); err != nil {
			logger.Error("タスクの更新に失敗しました",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil
	}

	// 4. 既存タスクなし: フィルタと提出状態で作成を判断
	if !decision.Include {
		attrs := []any{slog.String("skip_reason", string(decision.Reason))}
		if a.LockExplanation != "" && (decision.Reason == SkipLocked || decision.Reason == SkipNotYetUnlocked) {
			attrs = append(attrs, slog.String("lock_explanation", a.LockExplanation))
		}
		logger.Info("課題を同期対象外としてスキップします", attrs...)
		return skipOutcome(decision.Reason), nil
	}

	if !a.IsUnsubmitted() {
		return OutcomeSubmitted, nil
	}

	draft := model.TaskDraft{
		Content:   RenderContent(a),
		ProjectID: projectID,
		Due:       a.DueAt,
		Priority:  in.Priority,
		Labels:    in.Labels,
	}
	logger.Info("課題をタスクとして追加します")
	if r.dryRun {
		return OutcomeCreated, nil
	}
	if _, err := r.dispatcher.CreateTask(ctx, draft); err != nil {
		logger.Error("タスクの作成に失敗しました", slog.String("error", err.Error()))
		return OutcomeFailed, err
	}
	return OutcomeCreated, nil
}
