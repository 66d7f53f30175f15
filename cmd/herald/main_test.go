package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeTestConfig drops a minimal config with all paths inside tmpDir so CLI
// verbs never touch the working directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "herald.yaml")
	configYAML := fmt.Sprintf(`service:
  log_level: ERROR
  lock_path: %s
store:
  path: %s
  targets_dir: %s
`,
		filepath.Join(tmpDir, "herald.lock"),
		filepath.Join(tmpDir, "herald.db"),
		filepath.Join(tmpDir, "targets"),
	)
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abcdef1234567890", "2026-08-01T10:00:00Z")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" {
		t.Fatalf("version = %q, want 1.2.3", info.Version)
	}
	if info.Commit != "abcdef123456" {
		t.Fatalf("commit = %q, want 12-char truncation", info.Commit)
	}
	if info.BuildTime != "2026-08-01T10:00:00Z" {
		t.Fatalf("build_time = %q", info.BuildTime)
	}
}

func TestRunVersionRejectsPositionalArgs(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"extra"})
	})
	if code != 1 {
		t.Fatalf("runVersion() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage:") {
		t.Fatalf("stderr missing usage: %s", stderr)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"bogus"})
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("stderr missing unknown command notice: %s", stderr)
	}
}

func TestRunCLINoArgsPrintsUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	if code != 1 {
		t.Fatalf("runCLI() code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "herald <noun> <action>") {
		t.Fatalf("stdout missing usage: %s", stdout)
	}
}

func TestRequestEnqueueAndStatus(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runRequestEnqueue([]string{
			"--config", configPath,
			"--function", "FN_TEST",
			"--user", "usr-1",
			"--payload", `{"n":1}`,
		})
	})
	if code != 0 {
		t.Fatalf("enqueue code = %d, stderr: %s", code, stderr)
	}
	reqID := strings.TrimSpace(stdout)
	if !strings.HasPrefix(reqID, "req-") {
		t.Fatalf("enqueue output = %q, want req- id", reqID)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runRequestStatus([]string{"--config", configPath, reqID})
	})
	if code != 0 {
		t.Fatalf("status code = %d, stderr: %s", code, stderr)
	}

	var view map[string]any
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, stdout)
	}
	if view["status"] != "QUEUED" {
		t.Fatalf("status = %v, want QUEUED", view["status"])
	}
	if view["request_id"] != reqID {
		t.Fatalf("request_id = %v, want %s", view["request_id"], reqID)
	}
}

func TestRequestEnqueueRejectsBadPayload(t *testing.T) {
	configPath := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runRequestEnqueue([]string{
			"--config", configPath,
			"--function", "FN_TEST",
			"--user", "usr-1",
			"--payload", "{not json",
		})
	})
	if code != 1 {
		t.Fatalf("enqueue code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "not valid JSON") {
		t.Fatalf("stderr missing payload error: %s", stderr)
	}
}

func TestRequestInvokeUnknownFunctionFails(t *testing.T) {
	configPath := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runUserSeed([]string{"--config", configPath, "--id", "usr-inv", "--name", "Invoker"})
	})
	if code != 0 {
		t.Fatalf("user seed code = %d, stderr: %s", code, stderr)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runRequestEnqueue([]string{
			"--config", configPath,
			"--function", "FN_DOES_NOT_EXIST",
			"--user", "usr-inv",
		})
	})
	if code != 0 {
		t.Fatalf("enqueue code = %d, stderr: %s", code, stderr)
	}
	reqID := strings.TrimSpace(stdout)

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runRequestInvoke([]string{"--config", configPath, reqID})
	})
	if code != 0 {
		t.Fatalf("invoke code = %d, stderr: %s", code, stderr)
	}

	var view map[string]any
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("invoke output is not JSON: %v\n%s", err, stdout)
	}
	if view["status"] != "FAILED" {
		t.Fatalf("status = %v, want FAILED", view["status"])
	}
}

func TestTargetImportAndList(t *testing.T) {
	configPath := writeTestConfig(t)

	targetsFile := filepath.Join(t.TempDir(), "targets.txt")
	if err := os.WriteFile(targetsFile, []byte("+15550001\n+15550002\n+15550001\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runTargetImport([]string{
			"--config", configPath,
			"--user", "usr-t",
			"--name", "launch",
			targetsFile,
		})
	})
	if code != 0 {
		t.Fatalf("import code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 targets") {
		t.Fatalf("import output missing deduplicated count: %s", stdout)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runTargetList([]string{"--config", configPath, "--user", "usr-t"})
	})
	if code != 0 {
		t.Fatalf("list code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "launch") {
		t.Fatalf("list output missing imported list: %s", stdout)
	}
}

func TestCampaignCreateScheduleStatus(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCampaignCreate([]string{
			"--config", configPath,
			"--user", "usr-c",
			"--name", "spring",
			"--targets", "tl-1",
			"--message", "hello",
		})
	})
	if code != 0 {
		t.Fatalf("create code = %d, stderr: %s", code, stderr)
	}
	campaignID := strings.TrimSpace(stdout)
	if !strings.HasPrefix(campaignID, "cmp-") {
		t.Fatalf("create output = %q, want cmp- id", campaignID)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCampaignSchedule([]string{
			"--config", configPath,
			"--at", "2026-09-01T09:00:00Z",
			campaignID,
		})
	})
	if code != 0 {
		t.Fatalf("schedule code = %d, stderr: %s", code, stderr)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCampaignStatus([]string{"--config", configPath, campaignID})
	})
	if code != 0 {
		t.Fatalf("status code = %d, stderr: %s", code, stderr)
	}

	var view map[string]any
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, stdout)
	}
	if view["status"] != "SCHEDULED" {
		t.Fatalf("status = %v, want SCHEDULED", view["status"])
	}
	if view["scheduled_at"] != "2026-09-01T09:00:00Z" {
		t.Fatalf("scheduled_at = %v", view["scheduled_at"])
	}
}

func TestSessionAddAndSetStatus(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSessionAdd([]string{
			"--config", configPath,
			"--user", "usr-s",
			"--locator", "wa-device-7",
			"--tag", "pool-a",
		})
	})
	if code != 0 {
		t.Fatalf("add code = %d, stderr: %s", code, stderr)
	}
	sessionID := strings.TrimSpace(stdout)
	if !strings.HasPrefix(sessionID, "ses-") {
		t.Fatalf("add output = %q, want ses- id", sessionID)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runSessionSetStatus([]string{"--config", configPath, sessionID, "active"})
	})
	if code != 0 {
		t.Fatalf("set-status code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "ACTIVE") {
		t.Fatalf("set-status output = %q", stdout)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runSessionSetStatus([]string{"--config", configPath, sessionID, "FROZEN"})
	})
	if code != 1 {
		t.Fatalf("set-status with bad status code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Invalid session status") {
		t.Fatalf("stderr missing validation error: %s", stderr)
	}
}
