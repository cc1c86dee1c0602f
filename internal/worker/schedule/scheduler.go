// Package schedule は同期をcron式で定期実行するスケジューラを提供する。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/coursesync/internal/worker/syncjob"
)

// stopTimeout は停止時に実行中の同期の完了を待つ上限。
const stopTimeout = 30 * time.Second

// JobFunc は定期実行する処理。
type JobFunc func(ctx context.Context) error

// SkipRecorder はスキップした実行を記録するインターフェース。
type SkipRecorder interface {
	RecordRunSkipped()
}

// Scheduler は同期をcron式のスケジュールで実行する。
// 前回の同期が終わっていない場合、その回はスキップする。
type Scheduler struct {
	job        JobFunc
	logger     *slog.Logger
	skips      SkipRecorder
	runOnStart bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// skipsはnilでもよい。runOnStartがtrueの場合は起動直後に1回実行する。
func NewScheduler(job JobFunc, logger *slog.Logger, skips SkipRecorder, runOnStart bool) *Scheduler {
	return &Scheduler{
		job:        job,
		logger:     logger,
		skips:      skips,
		runOnStart: runOnStart,
	}
}

// ParseSpec はcron式（分 時 日 月 曜日）を検証する。
func ParseSpec(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("スケジュールの形式が不正です %q: %w", spec, err)
	}
	return s, nil
}

// Start はスケジュールに従って同期を実行する。
// コンテキストがキャンセルされるまでブロックし、実行中の同期の終了を待ってから戻る。
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))
	c.Schedule(schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))

	s.logger.Info("同期スケジューラを開始しました",
		slog.String("schedule", spec),
		slog.Time("next_run", schedule.Next(time.Now())),
	)

	// 起動時の実行はcronの管理外のため、停止時に個別に待つ
	var initial sync.WaitGroup
	if s.runOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			s.RunOnce(ctx)
		}()
	}
	c.Start()

	<-ctx.Done()

	stopCtx := c.Stop()
	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		initial.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.logger.Warn("実行中の同期の終了を待てずにスケジューラを停止します")
	}
	s.logger.Info("同期スケジューラを停止しました")
	return nil
}

// RunOnce は同期を1回実行し、結果をログに記録する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	err := s.job(ctx)
	switch {
	case err == nil:
	case errors.Is(err, syncjob.ErrRunInProgress):
		s.logger.Info("前回の同期が実行中のためスキップしました")
		if s.skips != nil {
			s.skips.RecordRunSkipped()
		}
	default:
		s.logger.Error("定期同期の実行に失敗しました", slog.String("error", err.Error()))
	}
}

// cronLogger はcronのログをslogに流す。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
