package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSource は呼び出しのたびに設定ファイルを読み直す。
type FileSource string

// Settings は設定ファイルを読み込んで返す。
func (p FileSource) Settings() (*Settings, error) {
	return LoadSettings(string(p))
}

// SettingsWatcher は設定ファイルの変更を監視し、最新の有効な設定を保持する。
// 変更は次回の同期から反映される。
type SettingsWatcher struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  *Settings
	onReload func(*Settings)
}

// NewSettingsWatcher は設定ファイルを読み込み、監視の準備をする。
// 初回の読み込みに失敗した場合はエラーを返す。
func NewSettingsWatcher(path string, logger *slog.Logger) (*SettingsWatcher, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return &SettingsWatcher{
		path:    path,
		logger:  logger,
		current: s,
	}, nil
}

// OnReload は再読み込みに成功したときに呼ぶ関数を設定する。Start より前に呼ぶ。
func (w *SettingsWatcher) OnReload(fn func(*Settings)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Settings は最後に読み込めた有効な設定を返す。
func (w *SettingsWatcher) Settings() (*Settings, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current, nil
}

// Start は設定ファイルのあるディレクトリの監視を開始する。
// エディタやSaveSettingsはリネームで置き換えるため、ファイルではなくディレクトリを監視する。
// ctxがキャンセルされると監視を終了する。
func (w *SettingsWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("設定ファイル監視の開始に失敗しました: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("設定ファイル監視の開始に失敗しました: %w", err)
	}

	target := filepath.Clean(w.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("設定ファイル監視でエラーが発生しました", slog.String("error", err.Error()))
			}
		}
	}()

	w.logger.Info("設定ファイルの監視を開始しました", slog.String("path", w.path))
	return nil
}

// reload は設定ファイルを読み直す。不正な内容の場合は直前の設定を維持する。
func (w *SettingsWatcher) reload() {
	s, err := LoadSettings(w.path)
	if err != nil {
		w.logger.Warn("設定ファイルの再読み込みに失敗したため直前の設定を使います",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	w.current = s
	fn := w.onReload
	w.mu.Unlock()

	w.logger.Info("設定ファイルを再読み込みしました",
		slog.String("path", w.path),
		slog.Int("course_count", len(s.Courses)),
	)
	if fn != nil {
		fn(s)
	}
}
