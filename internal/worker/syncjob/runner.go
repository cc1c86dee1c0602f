// Package syncjob は1回分の同期処理を組み立てて実行する。
// 設定の読み込み、Canvas/Todoistからの一覧取得、プロジェクトの準備、
// 突き合わせ、サマリーの出力までを担当する。
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coursesync/internal/config"
	"github.com/hitoshi/coursesync/internal/model"
	"github.com/hitoshi/coursesync/internal/reconcile"
)

// ErrRunInProgress は前回の同期が実行中であることを示す。
var ErrRunInProgress = errors.New("sync run already in progress")

// SettingsSource は同期開始時に設定を返す。
type SettingsSource interface {
	Settings() (*config.Settings, error)
}

// AssignmentSource はコースと課題の取得元。
type AssignmentSource interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListAssignments(ctx context.Context, courseID int64) ([]model.Assignment, error)
}

// TaskSink はタスクの取得と反映先。
type TaskSink interface {
	reconcile.TaskDispatcher
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateProject(ctx context.Context, name string) (*model.Project, error)
}

// MetricsRecorder は同期結果をメトリクスに記録するインターフェース。
type MetricsRecorder interface {
	reconcile.MetricsRecorder
	RecordRun(duration time.Duration, err error)
}

// Runner は同期処理を実行する。同時に実行される同期は1つまで。
type Runner struct {
	settings SettingsSource
	source   AssignmentSource
	sink     TaskSink
	logger   *slog.Logger
	metrics  MetricsRecorder
	out      io.Writer
	now      func() time.Time
	newID    func() string

	running sync.Mutex
	mu      sync.RWMutex
	latest  *Report
}

// Option はRunnerの任意設定。
type Option func(*Runner)

// WithMetrics は同期結果を記録するメトリクスを設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSummaryWriter はサマリーの出力先を設定する。
func WithSummaryWriter(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(settings SettingsSource, source AssignmentSource, sink TaskSink, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		settings: settings,
		source:   source,
		sink:     sink,
		logger:   logger,
		out:      io.Discard,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Latest は最後に完了した同期のレポートを返す。
func (r *Runner) Latest() (*Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil, false
	}
	report := *r.latest
	return &report, true
}

// Run は同期を1回実行する。
// 前回の同期が実行中の場合は ErrRunInProgress を返し、何もしない。
// 突き合わせを開始した後は、致命的エラーで終わった場合もサマリーを出力する。
func (r *Runner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	report := &Report{
		RunID:     r.newID(),
		StartedAt: r.now(),
		DryRun:    dryRun,
	}
	logger := r.logger.With(slog.String("run_id", report.RunID))
	logger.Info("同期を開始します", slog.Bool("dry_run", dryRun))

	err := r.run(ctx, logger, report)

	report.FinishedAt = r.now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
	}
	if r.metrics != nil {
		r.metrics.RecordRun(duration, err)
	}

	r.mu.Lock()
	r.latest = report
	r.mu.Unlock()

	if report.Reconciled {
		if werr := WriteSummary(r.out, report); werr != nil {
			logger.Warn("サマリーの出力に失敗しました", slog.String("error", werr.Error()))
		}
	}

	if err != nil {
		logger.Error("同期に失敗しました",
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return report, err
	}

	logger.Info("同期が完了しました",
		slog.Int("total", report.Stats.Total),
		slog.Int("new_added", report.Stats.NewAdded),
		slog.Int("updated", report.Stats.Updated),
		slog.Int("failed", report.Stats.Failed),
		slog.Int("anomalies", report.Stats.Anomalies),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return report, nil
}

// run は同期の各段階を順に実行し、reportに結果を書き込む。
func (r *Runner) run(ctx context.Context, logger *slog.Logger, report *Report) error {
	// 1. 設定の読み込み
	settings, err := r.settings.Settings()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	// 2. コース一覧と同期対象の決定
	courses, err := r.source.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}
	courseDir := model.NewCourseDirectory(courses)
	selected := selectCourses(courses, settings, logger)
	report.CourseCount = len(selected)
	logger.Info("同期対象のコースを選択しました", slog.Int("course_count", len(selected)))

	// 3. プロジェクト一覧と不足分の作成
	projects, err := r.sink.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	projectDir := model.NewProjectDirectory(projects)
	if err := r.ensureProjects(ctx, logger, selected, projectDir, report); err != nil {
		return err
	}

	// 4. 課題とタスクの取得
	var assignments []model.Assignment
	for _, c := range selected {
		list, err := r.source.ListAssignments(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("コース %d の課題一覧の取得に失敗しました: %w", c.ID, err)
		}
		assignments = append(assignments, list...)
	}
	logger.Info("課題一覧を取得しました", slog.Int("assignment_count", len(assignments)))

	tasks, err := r.sink.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	logger.Info("タスク一覧を取得しました", slog.Int("task_count", len(tasks)))

	// 5. 突き合わせ
	opts := []reconcile.Option{
		reconcile.WithClock(r.now),
		reconcile.WithDryRun(report.DryRun),
	}
	if r.metrics != nil {
		opts = append(opts, reconcile.WithMetrics(r.metrics))
	}
	reconciler := reconcile.NewReconciler(r.sink, logger, opts...)

	report.Reconciled = true
	stats, err := reconciler.Reconcile(ctx, reconcile.RunInput{
		Assignments: assignments,
		Tasks:       tasks,
		Courses:     courseDir,
		Projects:    projectDir,
		Filter: reconcile.FilterConfig{
			SyncNullAssignments:      settings.SyncNullAssignments,
			SyncLockedAssignments:    settings.SyncLockedAssignments,
			SyncNoDueDateAssignments: settings.SyncNoDueDateAssignments,
		},
		Priority: settings.TodoistTaskPriority,
		Labels:   settings.TodoistTaskLabels,
	})
	report.Stats = stats
	return err
}

// ensureProjects は選択したコースごとにプロジェクトを用意する。
// 同名のプロジェクトがあれば作成しない。dry-runでは作成せず仮のIDを割り当てる。
// 作成に失敗したコースは対応表に載せず、そのコースの課題だけが失敗扱いになる。
// 認証エラーの場合のみ同期全体を中断する。
func (r *Runner) ensureProjects(ctx context.Context, logger *slog.Logger, courses []model.Course, dir model.ProjectDirectory, report *Report) error {
	for _, c := range courses {
		if c.Name == "" {
			logger.Warn("サニタイズ後のコース名が空のためプロジェクトを作成しません", slog.Int64("course_id", c.ID))
			continue
		}
		if _, err := dir.Lookup(c.Name); err == nil {
			logger.Info("プロジェクトは作成済みです", slog.String("course_name", c.Name))
			continue
		}

		if report.DryRun {
			dir[c.Name] = dryRunProjectPrefix + c.Name
			report.ProjectsCreated++
			logger.Info("プロジェクトを作成します（dry-run）", slog.String("course_name", c.Name))
			continue
		}

		p, err := r.sink.CreateProject(ctx, c.Name)
		if err != nil {
			if errors.Is(err, model.ErrUnauthorized) {
				return fmt.Errorf("プロジェクト %q の作成に失敗しました: %w", c.Name, err)
			}
			logger.Error("プロジェクトの作成に失敗しました",
				slog.String("course_name", c.Name),
				slog.Int64("course_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		dir[c.Name] = p.ID
		report.ProjectsCreated++
		logger.Info("プロジェクトを作成しました",
			slog.String("course_name", c.Name),
			slog.String("project_id", p.ID),
		)
	}
	return nil
}

// dryRunProjectPrefix はdry-runで未作成のプロジェクトに割り当てるIDの接頭辞。
const dryRunProjectPrefix = "dry-run:"

// selectCourses は設定で選択されたコースを一覧の順に返す。
// 選択が空の場合は全コースを対象にする。一覧に無い選択IDは警告して除外する。
func selectCourses(courses []model.Course, settings *config.Settings, logger *slog.Logger) []model.Course {
	if !settings.HasCourseSelection() {
		return courses
	}
	ids := settings.Courses

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = false
	}

	var selected []model.Course
	for _, c := range courses {
		if _, ok := wanted[c.ID]; ok {
			wanted[c.ID] = true
			selected = append(selected, c)
		}
	}

	for _, id := range ids {
		if !wanted[id] {
			logger.Warn("選択したコースが見つからないためスキップします", slog.Int64("course_id", id))
		}
	}
	return selected
}
