package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/coursesync/internal/worker/syncjob"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type mockSkips struct {
	count int32
}

func (m *mockSkips) RecordRunSkipped() {
	atomic.AddInt32(&m.count, 1)
}

func TestParseSpec(t *testing.T) {
	if _, err := ParseSpec("0 6 * * *"); err != nil {
		t.Errorf("標準のcron式はエラーにならないこと: %v", err)
	}
	if _, err := ParseSpec("@daily"); err != nil {
		t.Errorf("記述子はエラーにならないこと: %v", err)
	}
	if _, err := ParseSpec("every morning"); err == nil {
		t.Error("不正なcron式はエラーになること")
	}
}

func TestRunOnce_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(func(ctx context.Context) error {
		return errors.New("boom")
	}, newTestLogger(&buf), nil, false)

	s.RunOnce(context.Background())

	if !strings.Contains(buf.String(), "定期同期の実行に失敗しました") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("失敗がログに記録されること: %s", buf.String())
	}
}

func TestRunOnce_RecordsSkip(t *testing.T) {
	var buf bytes.Buffer
	skips := &mockSkips{}
	s := NewScheduler(func(ctx context.Context) error {
		return syncjob.ErrRunInProgress
	}, newTestLogger(&buf), skips, false)

	s.RunOnce(context.Background())

	if atomic.LoadInt32(&skips.count) != 1 {
		t.Errorf("スキップ数 = %d, want 1", skips.count)
	}
	if strings.Contains(buf.String(), "定期同期の実行に失敗しました") {
		t.Error("スキップはエラーとして記録しないこと")
	}
}

func TestRunOnce_CancelledContextDoesNothing(t *testing.T) {
	var buf bytes.Buffer
	var calls int32
	s := NewScheduler(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, newTestLogger(&buf), nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("呼び出し回数 = %d, want 0", calls)
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(func(ctx context.Context) error { return nil }, newTestLogger(&buf), nil, false)

	if err := s.Start(context.Background(), "not a spec"); err == nil {
		t.Error("不正なcron式ではエラーを返すこと")
	}
}

func TestStart_RunsOnStartAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	ran := make(chan struct{}, 1)
	s := NewScheduler(func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, newTestLogger(&buf), nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, "0 6 * * *")
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("起動直後に1回実行されること")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start がエラーを返した: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("キャンセル後に停止すること")
	}
}

func TestStart_WaitsForRunOnStartBeforeReturning(t *testing.T) {
	var buf bytes.Buffer
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s := NewScheduler(func(ctx context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}, newTestLogger(&buf), nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, "0 6 * * *")
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("起動直後に1回実行されること")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("起動時の同期が終わる前に停止しないこと")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("起動時の同期の終了後に停止すること")
	}
	if !finished.Load() {
		t.Error("起動時の同期が最後まで実行されること")
	}
}
