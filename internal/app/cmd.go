package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand はcoursesyncのコマンドツリーを構築する。
// ログとサマリーはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "coursesync",
		Short:         "Canvasの課題をTodoistのタスクとして同期する",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(w)

	root.AddCommand(
		newSyncCommand(w),
		newWorkerCommand(w),
		newInitCommand(w),
		newCoursesCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newSyncCommand(w io.Writer) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "同期を1回実行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), w, cfg, logger, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "判定とログ出力のみ行い、Todoistへは反映しない")
	return cmd
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "スケジュールに従って同期を繰り返し実行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), w, cfg, logger, runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "起動直後に1回同期する")
	return cmd
}

func newInitCommand(w io.Writer) *cobra.Command {
	var opts initOptions
	defaults := defaultInitOptions()
	cmd := &cobra.Command{
		Use:   "init",
		Short: "設定ファイルを初期値で作成する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runInit(w, cfg, logger, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.canvasURL, "canvas-url", defaults.canvasURL, "CanvasのURL")
	f.IntVar(&opts.priority, "priority", defaults.priority, "作成するタスクの優先度（1から4）")
	f.StringSliceVar(&opts.labels, "labels", defaults.labels, "作成するタスクに付けるラベル")
	f.BoolVar(&opts.syncNull, "sync-null-assignments", defaults.syncNull, "採点されない課題も同期する")
	f.BoolVar(&opts.syncLocked, "sync-locked-assignments", defaults.syncLocked, "ロック中の課題も同期する")
	f.BoolVar(&opts.syncNoDueDate, "sync-no-due-date-assignments", defaults.syncNoDueDate, "期限の無い課題も同期する")
	f.BoolVar(&opts.force, "force", false, "既存の設定ファイルを上書きする")
	return cmd
}

func newCoursesCommand(w io.Writer) *cobra.Command {
	var selection string
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "受講中のコースを一覧表示し、同期するコースを選択する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := Init(w)
			if err != nil {
				return err
			}
			return runCourses(cmd.Context(), w, cfg, logger, selection)
		},
	}
	cmd.Flags().StringVar(&selection, "select", "", "同期するコースの番号（例: \"1,3\"）。\"all\" で選択を解除する")
	return cmd
}

// newHealthcheckCommand はdistroless環境でのDockerヘルスチェック用サブコマンドを返す。
// 軽量に動かすため設定の読み込みは行わない。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "ワーカーの /health を確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(cmd.Context(), port)
		},
	}
}
