package coursesync_test

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should use distroless, got: %s", lastFrom)
	}
}

func TestDockerfileBinaryAndEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/coursesync") {
		t.Error("Dockerfile should build ./cmd/coursesync")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/app/coursesync"]`) {
		t.Error("Dockerfile should use coursesync as ENTRYPOINT")
	}
	// distrolessにはシェルが無いため、ヘルスチェックはサブコマンドで行う
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should use the healthcheck subcommand")
	}
}

type composeFile struct {
	Services map[string]struct {
		Command     []string          `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		Volumes     []string          `yaml:"volumes"`
		Networks    []string          `yaml:"networks"`
	} `yaml:"services"`
	Networks map[string]any `yaml:"networks"`
}

func TestDockerComposeWorker(t *testing.T) {
	var compose composeFile
	if err := yaml.Unmarshal([]byte(readFile(t, "docker-compose.yml")), &compose); err != nil {
		t.Fatalf("docker-compose.yml should be valid YAML: %v", err)
	}

	worker, ok := compose.Services["worker"]
	if !ok {
		t.Fatal("docker-compose.yml should contain a worker service")
	}
	if len(worker.Command) == 0 || worker.Command[0] != "worker" {
		t.Errorf("worker service should use the 'worker' subcommand, got %v", worker.Command)
	}
	for _, key := range []string{"CANVAS_API_KEY", "TODOIST_API_KEY", "COURSESYNC_SETTINGS"} {
		if _, ok := worker.Environment[key]; !ok {
			t.Errorf("worker service should set %s", key)
		}
	}
	if !strings.HasPrefix(worker.Environment["COURSESYNC_SETTINGS"], "/config/") {
		t.Errorf("settings should live on the mounted volume, got %q", worker.Environment["COURSESYNC_SETTINGS"])
	}

	mounted := false
	for _, v := range worker.Volumes {
		if strings.HasSuffix(v, ":/config") {
			mounted = true
		}
	}
	if !mounted {
		t.Error("worker service should mount /config for the settings document")
	}

	for _, n := range worker.Networks {
		if _, ok := compose.Networks[n]; !ok {
			t.Errorf("network %q should be defined", n)
		}
	}
}
