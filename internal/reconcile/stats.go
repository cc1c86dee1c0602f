package reconcile

// Outcome は1件の課題に対する処理結果の分類。メトリクスのラベルにも使う。
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeAlreadySynced    Outcome = "already_synced"
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeIgnoredUngraded  Outcome = "ignored_ungraded"
	OutcomeIgnoredNoDueDate Outcome = "ignored_no_due_date"
	OutcomeIgnoredLocked    Outcome = "ignored_locked"
	OutcomeFailed           Outcome = "failed"
	OutcomeAnomaly          Outcome = "anomaly"
)

// RunStats は1回の突き合わせの集計結果。
// 表示専用であり、以降の処理の分岐には使わない。
type RunStats struct {
	Total            int `json:"total"`
	Submitted        int `json:"submitted"`
	NewAdded         int `json:"new_added"`
	Updated          int `json:"updated"`
	AlreadySynced    int `json:"already_synced"`
	IgnoredUngraded  int `json:"ignored_ungraded"`
	IgnoredNoDueDate int `json:"ignored_no_due_date"`
	IgnoredLocked    int `json:"ignored_locked"`
	Failed           int `json:"failed"`
	Anomalies        int `json:"anomalies"`
}

// record は処理結果に対応するカウンタを1つ進める。
func (s *RunStats) record(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.NewAdded++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeAlreadySynced:
		s.AlreadySynced++
	case OutcomeSubmitted:
		s.Submitted++
	case OutcomeIgnoredUngraded:
		s.IgnoredUngraded++
	case OutcomeIgnoredNoDueDate:
		s.IgnoredNoDueDate++
	case OutcomeIgnoredLocked:
		s.IgnoredLocked++
	case OutcomeFailed:
		s.Failed++
	case OutcomeAnomaly:
		s.Anomalies++
	}
}

// skipOutcome はスキップ理由を集計用の分類に変換する。
func skipOutcome(r SkipReason) Outcome {
	switch r {
	case SkipUngraded:
		return OutcomeIgnoredUngraded
	case SkipNoDueDate:
		return OutcomeIgnoredNoDueDate
	default:
		return OutcomeIgnoredLocked
	}
}
