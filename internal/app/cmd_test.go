package app

import (
	"bytes"
	"testing"

	"github.com/hitoshi/coursesync/internal/model"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCommand(&buf)

	for _, name := range []string{"sync", "worker", "init", "courses", "healthcheck"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("サブコマンド %q が登録されていること: %v", name, err)
		}
	}
}

func TestNewRootCommand_Flags(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCommand(&buf)

	tests := []struct {
		command string
		flag    string
		want    string
	}{
		{"sync", "dry-run", "false"},
		{"worker", "run-now", "false"},
		{"init", "canvas-url", "https://canvas.instructure.com"},
		{"init", "priority", "1"},
		{"init", "labels", "[]"},
		{"init", "sync-null-assignments", "true"},
		{"init", "sync-locked-assignments", "true"},
		{"init", "sync-no-due-date-assignments", "true"},
		{"init", "force", "false"},
		{"courses", "select", ""},
	}

	for _, tt := range tests {
		cmd, _, err := root.Find([]string{tt.command})
		if err != nil {
			t.Fatalf("Find(%q) がエラーを返した: %v", tt.command, err)
		}
		f := cmd.Flags().Lookup(tt.flag)
		if f == nil {
			t.Errorf("%s --%s が定義されていること", tt.command, tt.flag)
			continue
		}
		if f.DefValue != tt.want {
			t.Errorf("%s --%s の初期値 = %q, want %q", tt.command, tt.flag, f.DefValue, tt.want)
		}
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Error("未知のサブコマンドはエラーになること")
	}
}

func TestParseSelection(t *testing.T) {
	courses := []model.Course{{ID: 11, Name: "A"}, {ID: 22, Name: "B"}, {ID: 33, Name: "C"}}

	tests := []struct {
		name    string
		in      string
		want    []int64
		wantErr bool
	}{
		{"カンマ区切り", "1,3", []int64{11, 33}, false},
		{"空白区切り", "3 1", []int64{33, 11}, false},
		{"重複は1つにまとめる", "2,2", []int64{22}, false},
		{"all は選択解除", "all", []int64{}, false},
		{"範囲外", "4", nil, true},
		{"0は範囲外", "0", nil, true},
		{"数字以外", "x", nil, true},
		{"空", " , ", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.in, courses)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSelection(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSelection(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("parseSelection(%q)[%d] = %d, want %d", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPrintCourses_MarksSelection(t *testing.T) {
	var buf bytes.Buffer
	courses := []model.Course{{ID: 11, Name: "Math"}, {ID: 22, Name: "Bio"}}

	if err := printCourses(&buf, courses, []int64{22}); err != nil {
		t.Fatalf("printCourses がエラーを返した: %v", err)
	}
	want := "  1 ) Math : 11\n* 2 ) Bio : 22\n"
	if buf.String() != want {
		t.Errorf("出力 = %q, want %q", buf.String(), want)
	}
}
