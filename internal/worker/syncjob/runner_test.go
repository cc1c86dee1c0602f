package syncjob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/coursesync/internal/config"
	"github.com/hitoshi/coursesync/internal/model"
)

// --- モック定義 ---

type staticSettings struct {
	settings *config.Settings
	err      error
}

func (s staticSettings) Settings() (*config.Settings, error) {
	return s.settings, s.err
}

// mockSource はCanvas側のモック。
type mockSource struct {
	courses     []model.Course
	assignments map[int64][]model.Assignment
	coursesErr  error
	listed      []int64
	// block が設定されている場合、ListCourses はそのチャネルが閉じられるまで待つ
	block chan struct{}
}

func (m *mockSource) ListCourses(ctx context.Context) ([]model.Course, error) {
	if m.block != nil {
		<-m.block
	}
	return m.courses, m.coursesErr
}

func (m *mockSource) ListAssignments(ctx context.Context, courseID int64) ([]model.Assignment, error) {
	m.listed = append(m.listed, courseID)
	return m.assignments[courseID], nil
}

// mockSink はTodoist側のモック。
type mockSink struct {
	projects        []model.Project
	tasks           []model.Task
	createdProjects []string
	createdTasks    []model.TaskDraft
	updated         map[string]string
	createTaskErr   error
	// createProjectErr はプロジェクト名ごとに CreateProject が返すエラー
	createProjectErr map[string]error
}

func (m *mockSink) ListProjects(ctx context.Context) ([]model.Project, error) {
	return m.projects, nil
}

func (m *mockSink) ListTasks(ctx context.Context) ([]model.Task, error) {
	return m.tasks, nil
}

func (m *mockSink) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	if err := m.createProjectErr[name]; err != nil {
		return nil, err
	}
	m.createdProjects = append(m.createdProjects, name)
	p := model.Project{ID: fmt.Sprintf("p-%d", len(m.createdProjects)), Name: name}
	m.projects = append(m.projects, p)
	return &p, nil
}

func (m *mockSink) CreateTask(ctx context.Context, draft model.TaskDraft) (*model.Task, error) {
	if m.createTaskErr != nil {
		return nil, m.createTaskErr
	}
	m.createdTasks = append(m.createdTasks, draft)
	t := model.Task{ID: fmt.Sprintf("t-%d", len(m.createdTasks)), Content: draft.Content, ProjectID: draft.ProjectID, Due: draft.Due}
	m.tasks = append(m.tasks, t)
	return &t, nil
}

func (m *mockSink) UpdateTask(ctx context.Context, taskID string, due string) (*model.Task, error) {
	if m.updated == nil {
		m.updated = make(map[string]string)
	}
	m.updated[taskID] = due
	for i := range m.tasks {
		if m.tasks[i].ID == taskID {
			d := due
			m.tasks[i].Due = &d
			return &m.tasks[i], nil
		}
	}
	return nil, fmt.Errorf("task %s not found", taskID)
}

type mockMetrics struct {
	outcomes map[string]int
	runs     []error
}

func (m *mockMetrics) RecordOutcome(outcome string) {
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *mockMetrics) RecordRun(duration time.Duration, err error) {
	m.runs = append(m.runs, err)
}

// --- ヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func strPtr(s string) *string { return &s }

func fixedNow() time.Time {
	return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
}

func assignment(id, courseID int64, name, due string) model.Assignment {
	tag := "online_upload"
	return model.Assignment{
		ID:              id,
		CourseID:        courseID,
		Name:            name,
		HTMLURL:         fmt.Sprintf("https://canvas.example.com/courses/%d/assignments/%d", courseID, id),
		DueAt:           strPtr(due),
		SubmissionTypes: []*string{&tag},
		Submission:      &model.Submission{WorkflowState: model.WorkflowStateUnsubmitted},
	}
}

func defaultSettings() *config.Settings {
	s := config.DefaultSettings()
	s.TodoistTaskPriority = 2
	s.TodoistTaskLabels = []string{"school"}
	return &s
}

type fixture struct {
	source  *mockSource
	sink    *mockSink
	metrics *mockMetrics
	summary *bytes.Buffer
	logs    *bytes.Buffer
	runner  *Runner
}

func newFixture(settings *config.Settings) *fixture {
	f := &fixture{
		source: &mockSource{
			courses: []model.Course{{ID: 1, Name: "Math 101"}, {ID: 2, Name: "History"}},
			assignments: map[int64][]model.Assignment{
				1: {assignment(10, 1, "HW1", "2024-01-10T23:59:00Z")},
				2: {assignment(20, 2, "Essay", "2024-01-12")},
			},
		},
		sink:    &mockSink{projects: []model.Project{{ID: "p-math", Name: "Math 101"}}},
		metrics: &mockMetrics{},
		summary: &bytes.Buffer{},
		logs:    &bytes.Buffer{},
	}
	ids := 0
	f.runner = NewRunner(staticSettings{settings: settings}, f.source, f.sink, newTestLogger(f.logs),
		WithMetrics(f.metrics),
		WithSummaryWriter(f.summary),
		WithClock(fixedNow),
	)
	f.runner.newID = func() string {
		ids++
		return fmt.Sprintf("run-%d", ids)
	}
	return f
}

// --- テスト ---

func TestRunner_Run_CreatesProjectsAndTasks(t *testing.T) {
	f := newFixture(defaultSettings())

	report, err := f.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if len(f.sink.createdProjects) != 1 || f.sink.createdProjects[0] != "History" {
		t.Errorf("作成したプロジェクト = %v, want [History]", f.sink.createdProjects)
	}
	if report.ProjectsCreated != 1 {
		t.Errorf("ProjectsCreated = %d, want 1", report.ProjectsCreated)
	}
	if len(f.sink.createdTasks) != 2 {
		t.Fatalf("作成したタスク数 = %d, want 2", len(f.sink.createdTasks))
	}

	first := f.sink.createdTasks[0]
	if first.ProjectID != "p-math" {
		t.Errorf("ProjectID = %q, want p-math", first.ProjectID)
	}
	if first.Priority != 2 || len(first.Labels) != 1 || first.Labels[0] != "school" {
		t.Errorf("優先度とラベルが設定から渡されること: %+v", first)
	}
	if f.sink.createdTasks[1].ProjectID != "p-1" {
		t.Errorf("新規プロジェクトのIDが使われること: %q", f.sink.createdTasks[1].ProjectID)
	}

	if report.RunID != "run-1" || report.Stats.Total != 2 || report.Stats.NewAdded != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(f.metrics.runs) != 1 || f.metrics.runs[0] != nil {
		t.Errorf("RecordRun の記録 = %v", f.metrics.runs)
	}
	if f.metrics.outcomes["created"] != 2 {
		t.Errorf("created outcome = %d, want 2", f.metrics.outcomes["created"])
	}

	out := f.summary.String()
	for _, want := range []string{"Total Assignments: 2", "Total Added to Todoist: 2", "Locked Assignments Ignored: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("サマリーに %q が含まれること:\n%s", want, out)
		}
	}
}

func TestRunner_Run_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(defaultSettings())

	if _, err := f.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("1回目の Run がエラーを返した: %v", err)
	}
	report, err := f.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("2回目の Run がエラーを返した: %v", err)
	}

	if report.Stats.NewAdded != 0 || report.Stats.Updated != 0 {
		t.Errorf("2回目は作成・更新が0件であること: %+v", report.Stats)
	}
	if report.Stats.AlreadySynced != 2 {
		t.Errorf("AlreadySynced = %d, want 2", report.Stats.AlreadySynced)
	}
	if len(f.sink.createdProjects) != 1 {
		t.Errorf("プロジェクトは重複して作成されないこと: %v", f.sink.createdProjects)
	}
	if report.RunID != "run-2" {
		t.Errorf("RunID = %q, want run-2", report.RunID)
	}
}

func TestRunner_Run_RespectsCourseSelection(t *testing.T) {
	s := defaultSettings()
	s.Courses = []int64{2, 99}
	f := newFixture(s)

	report, err := f.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if len(f.source.listed) != 1 || f.source.listed[0] != 2 {
		t.Errorf("課題を取得したコース = %v, want [2]", f.source.listed)
	}
	if report.CourseCount != 1 {
		t.Errorf("CourseCount = %d, want 1", report.CourseCount)
	}
	if !strings.Contains(f.logs.String(), "選択したコースが見つからない") {
		t.Error("見つからない選択IDは警告されること")
	}
}

func TestRunner_Run_DryRunDispatchesNothing(t *testing.T) {
	f := newFixture(defaultSettings())

	report, err := f.runner.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if len(f.sink.createdProjects) != 0 || len(f.sink.createdTasks) != 0 {
		t.Errorf("dry-runでは何も作成しないこと: projects=%v tasks=%v", f.sink.createdProjects, f.sink.createdTasks)
	}
	if report.Stats.NewAdded != 2 || report.Stats.Failed != 0 {
		t.Errorf("dry-runでも判定結果は集計されること: %+v", report.Stats)
	}
	if !strings.Contains(f.summary.String(), "Dry run") {
		t.Errorf("サマリーにdry-runの表示があること:\n%s", f.summary.String())
	}
}

func TestRunner_Run_SettingsError(t *testing.T) {
	f := newFixture(nil)
	f.runner.settings = staticSettings{err: model.NewInvalidSettingsError("missing")}

	report, err := f.runner.Run(context.Background(), false)
	if !errors.Is(err, model.ErrInvalidSettings) {
		t.Fatalf("err = %v, want ErrInvalidSettings", err)
	}
	if report.Reconciled {
		t.Error("突き合わせは開始されないこと")
	}
	if f.summary.Len() != 0 {
		t.Errorf("突き合わせ前の失敗ではサマリーを出力しないこと:\n%s", f.summary.String())
	}
	if len(f.metrics.runs) != 1 || f.metrics.runs[0] == nil {
		t.Errorf("失敗した同期が記録されること: %v", f.metrics.runs)
	}
}

func TestRunner_Run_UnauthorizedDuringListing(t *testing.T) {
	f := newFixture(defaultSettings())
	f.source.coursesErr = model.NewUnauthorizedError("canvas")

	_, err := f.runner.Run(context.Background(), false)
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRunner_Run_UnauthorizedDuringDispatchPrintsSummary(t *testing.T) {
	f := newFixture(defaultSettings())
	f.sink.createTaskErr = model.NewUnauthorizedError("todoist")

	report, err := f.runner.Run(context.Background(), false)
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if report.Stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Stats.Failed)
	}
	out := f.summary.String()
	if !strings.Contains(out, "Total Assignments: 2") || !strings.Contains(out, "Run stopped") {
		t.Errorf("致命的エラーでもサマリーを出力すること:\n%s", out)
	}
}

func TestRunner_Latest(t *testing.T) {
	f := newFixture(defaultSettings())

	if _, ok := f.runner.Latest(); ok {
		t.Error("実行前は ok=false であること")
	}

	if _, err := f.runner.Run(context.Background(), false); err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}
	latest, ok := f.runner.Latest()
	if !ok || latest.RunID != "run-1" || latest.Stats.NewAdded != 2 {
		t.Errorf("Latest = (%+v, %v)", latest, ok)
	}
	if !latest.FinishedAt.Equal(fixedNow()) {
		t.Errorf("FinishedAt = %v", latest.FinishedAt)
	}
}

func TestRunner_Run_RejectsOverlappingRun(t *testing.T) {
	f := newFixture(defaultSettings())
	f.source.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runner.Run(context.Background(), false)
	}()

	// 1回目がロックを取得するまで待つ
	deadline := time.Now().Add(5 * time.Second)
	for {
		if !f.runner.running.TryLock() {
			break
		}
		f.runner.running.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("1回目の同期が開始されること")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := f.runner.Run(context.Background(), false); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}

	close(f.source.block)
	wg.Wait()
}

func TestRunner_Run_ProjectCreationFailureIsolatedToCourse(t *testing.T) {
	f := newFixture(defaultSettings())
	f.sink.projects = nil
	f.sink.createProjectErr = map[string]error{"Math 101": errors.New("400 bad request")}

	report, err := f.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("1コースのプロジェクト作成失敗で同期全体が止まらないこと: %v", err)
	}

	if len(f.sink.createdTasks) != 1 || f.sink.createdTasks[0].ProjectID != "p-1" {
		t.Fatalf("他のコースの課題は追加されること: %+v", f.sink.createdTasks)
	}
	if report.ProjectsCreated != 1 {
		t.Errorf("ProjectsCreated = %d, want 1", report.ProjectsCreated)
	}
	if report.Stats.Total != 2 || report.Stats.NewAdded != 1 || report.Stats.Failed != 1 {
		t.Errorf("Stats = %+v, want Total=2 NewAdded=1 Failed=1", report.Stats)
	}
	if !strings.Contains(f.logs.String(), "プロジェクトの作成に失敗しました") {
		t.Errorf("作成失敗がログに出力されること:\n%s", f.logs.String())
	}
	if !strings.Contains(f.summary.String(), "Total Added to Todoist: 1") {
		t.Errorf("サマリーが出力されること:\n%s", f.summary.String())
	}
}

func TestRunner_Run_EmptyCourseNameSkipsProject(t *testing.T) {
	f := newFixture(defaultSettings())
	f.source.courses = []model.Course{{ID: 1, Name: ""}, {ID: 2, Name: "History"}}

	report, err := f.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	for _, name := range f.sink.createdProjects {
		if name == "" {
			t.Errorf("空の名前でプロジェクトを作成しないこと: %v", f.sink.createdProjects)
		}
	}
	if report.Stats.NewAdded != 1 || report.Stats.Failed != 1 {
		t.Errorf("Stats = %+v, want NewAdded=1 Failed=1", report.Stats)
	}
	if !strings.Contains(f.logs.String(), "コース名が空") {
		t.Errorf("空のコース名が警告されること:\n%s", f.logs.String())
	}
}

func TestRunner_Run_UnauthorizedDuringProjectCreation(t *testing.T) {
	f := newFixture(defaultSettings())
	f.sink.createProjectErr = map[string]error{"History": model.ErrUnauthorized}

	report, err := f.runner.Run(context.Background(), false)
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if report.Reconciled || len(f.sink.createdTasks) != 0 {
		t.Errorf("認証エラーでは突き合わせに進まないこと: reconciled=%v tasks=%v", report.Reconciled, f.sink.createdTasks)
	}
}

func TestSelectCourses_EmptySelectionReturnsAll(t *testing.T) {
	var buf bytes.Buffer
	courses := []model.Course{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}

	got := selectCourses(courses, defaultSettings(), newTestLogger(&buf))
	if len(got) != 2 {
		t.Errorf("件数 = %d, want 2", len(got))
	}
}

func TestWriteSummary_Labels(t *testing.T) {
	var buf bytes.Buffer
	report := &Report{}
	report.Stats.Total = 8
	report.Stats.Submitted = 1
	report.Stats.IgnoredNoDueDate = 3

	if err := WriteSummary(&buf, report); err != nil {
		t.Fatalf("WriteSummary がエラーを返した: %v", err)
	}

	want := []string{
		"Total Assignments: 8",
		"Total Already Submitted: 1",
		"Total Added to Todoist: 0",
		"Total Updated In Todoist: 0",
		"Total Already Synced: 0",
		"Ungraded and ignored: 0",
		"With no due date and Ignored: 3",
		"Locked Assignments Ignored: 0",
		"Failed: 0",
		"Anomalies: 0",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("行数 = %d, want %d:\n%s", len(got), len(want), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
