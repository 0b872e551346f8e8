package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"closet_backup/models"
)

func testOpsStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := testOpsStore(t)

	run := &models.BackupRun{
		ClosetID:  "emily2636",
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	id, err := store.CreateRun(run)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a run id")
	}
	run.ID = id

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.LinksFound = 106
	run.ListingsNew = 100
	run.ListingsSkipped = 6
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	if err := store.Log(&id, models.LogLevelInfo, "backup finished", "emily2636"); err != nil {
		t.Fatalf("log: %v", err)
	}

	if err := store.UpdateClosetStats("emily2636", 100); err != nil {
		t.Fatalf("update stats: %v", err)
	}
	stats, err := store.GetClosetStats("emily2636")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats == nil {
		t.Fatal("expected stats row")
	}
	if stats.TotalBackedUp != 100 {
		t.Fatalf("expected 100 backed up, got %d", stats.TotalBackedUp)
	}
	if stats.LastRunStatus != string(models.RunStatusCompleted) {
		t.Fatalf("unexpected last status %q", stats.LastRunStatus)
	}
	if stats.SuccessRate != 1.0 {
		t.Fatalf("expected success rate 1.0, got %f", stats.SuccessRate)
	}
}

func TestGetClosetStatsMissing(t *testing.T) {
	store := testOpsStore(t)

	stats, err := store.GetClosetStats("nobody")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil for unknown closet, got %+v", stats)
	}
}

func TestCommandQueue(t *testing.T) {
	store := testOpsStore(t)

	// Queue a command the way an external writer would.
	_, err := store.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`,
		string(models.CmdBackupCloset), `{"closet":"emily2636"}`)
	if err != nil {
		t.Fatalf("insert command: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 pending command, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdBackupCloset {
		t.Fatalf("unexpected command %q", cmds[0].Command)
	}

	params, err := store.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if params.Closet != "emily2636" {
		t.Fatalf("unexpected closet %q", params.Closet)
	}

	if err := store.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	cmds, err = store.GetPendingCommands()
	if err != nil {
		t.Fatalf("get pending after mark: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected no pending commands, got %d", len(cmds))
	}
}

func TestParseCommandParamsEmpty(t *testing.T) {
	store := testOpsStore(t)

	cmd := &models.Command{Command: models.CmdBackupNow, Params: json.RawMessage(`{}`)}
	params, err := store.ParseCommandParams(cmd)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Closet != "" {
		t.Fatalf("expected empty closet, got %q", params.Closet)
	}
}
