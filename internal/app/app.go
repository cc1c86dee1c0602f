package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/coursesync/internal/config"
	"github.com/hitoshi/coursesync/internal/handler"
	"github.com/hitoshi/coursesync/internal/logger"
	"github.com/hitoshi/coursesync/internal/metrics"
	"github.com/hitoshi/coursesync/internal/model"
	"github.com/hitoshi/coursesync/internal/worker/schedule"
	"github.com/hitoshi/coursesync/internal/worker/syncjob"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. ログの初期化
	level, err := logger.ParseLevel(cfg.LogLevel)
	l := logger.SetupDefault(w, level)
	if err != nil {
		l.Warn("LOG_LEVEL を解釈できないためinfoを使います", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析して実行する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで実行中の処理をキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// runSync は同期を1回実行する。
func runSync(ctx context.Context, w io.Writer, cfg *config.Config, l *slog.Logger, dryRun bool) error {
	if err := cfg.Require(config.ServiceCanvas, config.ServiceTodoist); err != nil {
		return err
	}

	// 1. 設定ドキュメントの読み込み
	source := config.FileSource(cfg.SettingsPath)
	settings, err := source.Settings()
	if err != nil {
		return err
	}

	// 2. クライアントの構築
	canvasClient, err := newCanvasClient(cfg, settings, l, nil)
	if err != nil {
		return err
	}
	todoistClient, err := newTodoistClient(cfg, l, nil)
	if err != nil {
		return err
	}

	// 3. 同期の実行
	runner := syncjob.NewRunner(source, canvasClient, todoistClient, l,
		syncjob.WithSummaryWriter(w),
	)
	_, err = runner.Run(ctx, dryRun)
	return err
}

// runWorker はワーカーモードで起動する。
// 設定ファイルを監視しながらスケジュールに従って同期し、運用エンドポイントを公開する。
func runWorker(ctx context.Context, w io.Writer, cfg *config.Config, l *slog.Logger, runNow bool) error {
	if err := cfg.Require(config.ServiceCanvas, config.ServiceTodoist); err != nil {
		return err
	}
	if _, err := schedule.ParseSpec(cfg.SyncSchedule); err != nil {
		return err
	}

	// 1. 設定ドキュメントの読み込みと監視
	watcher, err := config.NewSettingsWatcher(cfg.SettingsPath, l)
	if err != nil {
		return err
	}
	settings, _ := watcher.Settings()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. クライアントと同期処理の構築
	canvasClient, err := newCanvasClient(cfg, settings, l, collector)
	if err != nil {
		return err
	}
	todoistClient, err := newTodoistClient(cfg, l, collector)
	if err != nil {
		return err
	}
	runner := syncjob.NewRunner(watcher, canvasClient, todoistClient, l,
		syncjob.WithMetrics(collector),
		syncjob.WithSummaryWriter(w),
	)

	canvasURL := canvasBaseURL(cfg, settings)
	watcher.OnReload(func(s *config.Settings) {
		if canvasBaseURL(cfg, s) != canvasURL {
			l.Warn("CanvasのURLの変更は再起動後に反映されます",
				slog.String("current", canvasURL),
				slog.String("configured", canvasBaseURL(cfg, s)),
			)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	// 4. 運用エンドポイント
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         l,
		HealthChecker:  settingsHealth{source: watcher},
		Runs:           runner,
		MetricsHandler: metrics.Handler(reg),
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		l.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// 5. スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := schedule.NewScheduler(func(ctx context.Context) error {
		_, err := runner.Run(ctx, false)
		return err
	}, l, collector, runNow)
	if err := scheduler.Start(ctx, cfg.SyncSchedule); err != nil {
		return err
	}

	l.Info("shutting down ops server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info("worker stopped gracefully")
	return nil
}

// initOptions は init コマンドの入力。
type initOptions struct {
	canvasURL     string
	priority      int
	labels        []string
	syncNull      bool
	syncLocked    bool
	syncNoDueDate bool
	force         bool
}

func defaultInitOptions() initOptions {
	d := config.DefaultSettings()
	return initOptions{
		canvasURL:     d.CanvasAPIHeading,
		priority:      d.TodoistTaskPriority,
		labels:        d.TodoistTaskLabels,
		syncNull:      d.SyncNullAssignments,
		syncLocked:    d.SyncLockedAssignments,
		syncNoDueDate: d.SyncNoDueDateAssignments,
	}
}

// runInit は設定ファイルを作成する。既存のファイルは force が無い限り上書きしない。
func runInit(w io.Writer, cfg *config.Config, l *slog.Logger, opts initOptions) error {
	if !opts.force {
		if _, err := os.Stat(cfg.SettingsPath); err == nil {
			return fmt.Errorf("設定ファイルは既に存在します: %s（上書きする場合は --force）", cfg.SettingsPath)
		}
	}

	s := config.DefaultSettings()
	s.CanvasAPIHeading = opts.canvasURL
	s.TodoistTaskPriority = opts.priority
	s.TodoistTaskLabels = append([]string{}, opts.labels...)
	s.SyncNullAssignments = opts.syncNull
	s.SyncLockedAssignments = opts.syncLocked
	s.SyncNoDueDateAssignments = opts.syncNoDueDate

	if err := config.SaveSettings(cfg.SettingsPath, &s); err != nil {
		return err
	}

	l.Info("設定ファイルを作成しました", slog.String("path", cfg.SettingsPath))
	fmt.Fprintf(w, "Wrote %s\n", cfg.SettingsPath)
	fmt.Fprintln(w, "Next: set CANVAS_API_KEY and TODOIST_API_KEY, then run `coursesync courses` to pick courses.")
	return nil
}

// runCourses はコースを一覧表示する。selectionがあれば選択を設定ファイルに保存する。
func runCourses(ctx context.Context, w io.Writer, cfg *config.Config, l *slog.Logger, selection string) error {
	if err := cfg.Require(config.ServiceCanvas); err != nil {
		return err
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}
	canvasClient, err := newCanvasClient(cfg, settings, l, nil)
	if err != nil {
		return err
	}
	courses, err := canvasClient.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}

	if selection == "" {
		return printCourses(w, courses, settings.Courses)
	}

	ids, err := parseSelection(selection, courses)
	if err != nil {
		return err
	}
	settings.Courses = ids
	if err := config.SaveSettings(cfg.SettingsPath, settings); err != nil {
		return err
	}

	l.Info("同期するコースを保存しました", slog.Int("course_count", len(ids)))
	return printCourses(w, courses, ids)
}

// printCourses は番号付きでコースを表示する。選択済みのコースには * を付ける。
func printCourses(w io.Writer, courses []model.Course, selected []int64) error {
	chosen := make(map[int64]bool, len(selected))
	for _, id := range selected {
		chosen[id] = true
	}
	for i, c := range courses {
		mark := " "
		if chosen[c.ID] {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %d ) %s : %d\n", mark, i+1, c.Name, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// parseSelection は "1,3" や "1 3" 形式の番号をコースIDに変換する。
// "all" は選択の解除（全コースを同期）を意味する。
func parseSelection(selection string, courses []model.Course) ([]int64, error) {
	if strings.EqualFold(strings.TrimSpace(selection), "all") {
		return []int64{}, nil
	}

	fields := strings.FieldsFunc(selection, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("コースの番号を指定してください")
	}

	seen := make(map[int64]bool, len(fields))
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(courses) {
			return nil, fmt.Errorf("コースの番号が範囲外です: %q（1から%dで指定）", f, len(courses))
		}
		id := courses[n-1].ID
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// settingsHealth は設定が読み込めていれば正常とみなす。
type settingsHealth struct {
	source syncjob.SettingsSource
}

func (h settingsHealth) Healthy() error {
	s, err := h.source.Settings()
	if err != nil {
		return err
	}
	if s == nil {
		return errors.New("settings not loaded")
	}
	return nil
}
