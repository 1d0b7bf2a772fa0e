// ABOUTME: End-to-end tests running CLI commands against sqlite stores in a temp dir
// ABOUTME: Each invocation opens and closes the app like a real process would

package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/harper/om/internal/models"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OM_DATA_DIR", dir)
	t.Setenv("OM_LOCAL_DRIVER", "sqlite")
	t.Setenv("OM_REMOTE_DRIVER", "sqlite")
	t.Setenv("OM_REMOTE_DSN", "")
	t.Setenv("OM_USER_ID", "seeker")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OM_LOG_LEVEL", "error")
	t.Setenv("OM_LOG_PRETTY", "false")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("om %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCLI_Streak(t *testing.T) {
	setupEnv(t)

	if out := mustRun(t, "streak"); !strings.Contains(out, "1 day") {
		t.Errorf("streak output = %q", out)
	}
	if out := mustRun(t, "-q", "streak"); strings.TrimSpace(out) != "1" {
		t.Errorf("quiet streak output = %q", out)
	}

	var resp struct {
		UserID string `json:"user_id"`
		Streak int    `json:"streak"`
	}
	out := mustRun(t, "--format", "json", "-u", "other", "streak")
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if resp.UserID != "other" || resp.Streak != 1 {
		t.Errorf("got %+v", resp)
	}
}

func TestCLI_ProfileFlow(t *testing.T) {
	setupEnv(t)

	if out := mustRun(t, "profile"); !strings.Contains(out, "No profile found") {
		t.Errorf("empty profile output = %q", out)
	}

	if _, err := runCLI(t, "profile", "complete"); err == nil {
		t.Error("complete without --set should fail")
	}
	if _, err := runCLI(t, "profile", "complete", "--set", "novalue"); err == nil {
		t.Error("malformed --set should fail")
	}

	mustRun(t, "profile", "complete", "--set", "deity=Krishna", "--set", "path=bhakti")
	mustRun(t, "profile", "complete", "--set", "path=jnana")

	out := mustRun(t, "profile")
	for _, want := range []string{"deity", "Krishna", "jnana"} {
		if !strings.Contains(out, want) {
			t.Errorf("profile output missing %q:\n%s", want, out)
		}
	}

	var resp struct {
		Onboarded bool            `json:"onboarded"`
		Profile   *models.Profile `json:"profile"`
	}
	out = mustRun(t, "--format", "json", "profile", "--refresh")
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !resp.Onboarded || resp.Profile.Attributes["deity"] != "Krishna" {
		t.Errorf("got %+v", resp)
	}
}

func TestCLI_AskHistoryDelete(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "ask", "what", "is", "my", "duty?")
	if !strings.Contains(out, "Lord Krishna says:") {
		t.Errorf("ask output = %q", out)
	}
	mustRun(t, "ask", "how do I meditate?")

	var entries []models.Entry
	out = mustRun(t, "--format", "json", "history", "--local")
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if entries[0].Text != "what is my duty?" || entries[1].Kind != models.EntryGuidance {
		t.Errorf("unexpected order: %+v", entries[:2])
	}

	out = mustRun(t, "history", "delete", entries[1].ID)
	if !strings.Contains(out, "Deleted 2 entries") {
		t.Errorf("delete output = %q", out)
	}
	if _, err := runCLI(t, "history", "delete", "missing"); err == nil {
		t.Error("deleting an unknown entry should fail")
	}

	out = mustRun(t, "history")
	if strings.Contains(out, "what is my duty?") {
		t.Errorf("deleted exchange came back from the remote:\n%s", out)
	}
	if !strings.Contains(out, "how do I meditate?") || !strings.Contains(out, "Total: 2 entries") {
		t.Errorf("history output = %q", out)
	}
}

func TestCLI_SyncAndSignOut(t *testing.T) {
	setupEnv(t)

	mustRun(t, "profile", "complete", "--set", "deity=Shiva")
	mustRun(t, "ask", "peace")

	if out := mustRun(t, "sync", "flush"); !strings.Contains(out, "Flushed:") {
		t.Errorf("flush output = %q", out)
	}
	out := mustRun(t, "sync", "status")
	if !strings.Contains(out, "Local:  sqlite") || !strings.Contains(out, "connected") || !strings.Contains(out, "Cached: 1 user(s)") {
		t.Errorf("status output = %q", out)
	}
	if _, err := runCLI(t, "sync", "now"); err == nil {
		t.Error("sync now without the charm driver should fail")
	}

	if out := mustRun(t, "signout"); !strings.Contains(out, "Signed out seeker") {
		t.Errorf("signout output = %q", out)
	}
	if out := mustRun(t, "history", "--local"); !strings.Contains(out, "No conversation yet") {
		t.Errorf("local history after signout = %q", out)
	}

	// the remote copy survives and is merged back
	if out := mustRun(t, "profile"); !strings.Contains(out, "Shiva") {
		t.Errorf("profile after signout = %q", out)
	}
	if out := mustRun(t, "history"); !strings.Contains(out, "Total: 2 entries") {
		t.Errorf("history after signout = %q", out)
	}
}

func TestCLI_RequiresUser(t *testing.T) {
	setupEnv(t)
	t.Setenv("OM_USER_ID", "")

	_, err := runCLI(t, "streak")
	if err == nil || !strings.Contains(err.Error(), "no user") {
		t.Errorf("err = %v, want missing user", err)
	}
}

func TestCLI_InvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("OM_REMOTE_DRIVER", "mongo")

	if _, err := runCLI(t, "streak"); err == nil {
		t.Error("invalid driver should fail")
	}
}

func TestCLI_OfflineRemote(t *testing.T) {
	setupEnv(t)
	t.Setenv("OM_REMOTE_DRIVER", "offline")

	if _, err := runCLI(t, "streak"); err == nil {
		t.Error("first streak with no local copy and no remote should be unavailable")
	}
	mustRun(t, "profile", "complete", "--set", "deity=Rama")
	if out := mustRun(t, "profile"); !strings.Contains(out, "Rama") {
		t.Errorf("offline profile = %q", out)
	}
	if out := mustRun(t, "sync", "status"); !strings.Contains(out, "offline") {
		t.Errorf("offline status = %q", out)
	}
}
