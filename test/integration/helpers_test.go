//go:build integration
// +build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

func skipUnlessEnabled(t *testing.T) {
	t.Helper()
	if os.Getenv("STATEBAK_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test; set STATEBAK_INTEGRATION_TESTS=1 to run")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// buildStatebak compiles the binary once per test run.
func buildStatebak(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "statebak-bin")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "statebak")
		out, err := exec.Command("go", "build", "-o", binPath, "../../cmd/statebak").CombinedOutput()
		if err != nil {
			buildErr = &buildFailure{err: err, output: string(out)}
		}
	})

	if buildErr != nil {
		t.Fatalf("Failed to build statebak binary: %v", buildErr)
	}
	return binPath
}

type buildFailure struct {
	err    error
	output string
}

func (b *buildFailure) Error() string {
	return b.err.Error() + "\n" + b.output
}

// testEnv isolates git and statebak from the developer's configuration.
func testEnv(t *testing.T) []string {
	t.Helper()

	env := []string{
		"GIT_TERMINAL_PROMPT=0",
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_NOSYSTEM=1",
		"XDG_DATA_HOME=" + t.TempDir(),
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "STATEBAK_") || strings.HasPrefix(kv, "GITHUB_TOKEN=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// setupRemote creates a bare repository to push to.
func setupRemote(t *testing.T) string {
	t.Helper()

	remote := filepath.Join(t.TempDir(), "remote.git")
	git(t, "", "init", "--bare", "--initial-branch=main", remote)
	return remote
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.Command("git", args...)
	cmd.Env = testEnv(t)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
