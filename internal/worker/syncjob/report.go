package syncjob

import (
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/coursesync/internal/reconcile"
)

// Report は1回の同期の結果。/runs/latest でJSONとして公開する。
type Report struct {
	RunID           string             `json:"run_id"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	DryRun          bool               `json:"dry_run"`
	CourseCount     int                `json:"course_count"`
	ProjectsCreated int                `json:"projects_created"`
	Reconciled      bool               `json:"reconciled"`
	Stats           reconcile.RunStats `json:"stats"`
	Error           string             `json:"error,omitempty"`
}

// WriteSummary は集計結果を人が読む形式で出力する。
func WriteSummary(w io.Writer, report *Report) error {
	s := report.Stats
	lines := []struct {
		label string
		value int
	}{
		{"Total Assignments", s.Total},
		{"Total Already Submitted", s.Submitted},
		{"Total Added to Todoist", s.NewAdded},
		{"Total Updated In Todoist", s.Updated},
		{"Total Already Synced", s.AlreadySynced},
		{"Ungraded and ignored", s.IgnoredUngraded},
		{"With no due date and Ignored", s.IgnoredNoDueDate},
		{"Locked Assignments Ignored", s.IgnoredLocked},
		{"Failed", s.Failed},
		{"Anomalies", s.Anomalies},
	}

	if report.DryRun {
		if _, err := fmt.Fprintln(w, "Dry run: no changes were sent to Todoist"); err != nil {
			return err
		}
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %d\n", l.label, l.value); err != nil {
			return err
		}
	}
	if report.Error != "" {
		if _, err := fmt.Fprintf(w, "Run stopped: %s\n", report.Error); err != nil {
			return err
		}
	}
	return nil
}
