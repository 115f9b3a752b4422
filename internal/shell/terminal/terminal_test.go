package terminal

import "testing"

func TestNewSnapshotAndRestore(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Skipf("no controlling terminal available in this environment: %s", err)
	}
	defer c.Close()

	fg, err := c.ForegroundPgid()
	if err != nil {
		t.Fatalf("ForegroundPgid: %s", err)
	}
	if fg == 0 {
		t.Fatalf("expected a nonzero foreground process group")
	}

	saved, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %s", err)
	}
	if err := c.Restore(saved); err != nil {
		t.Fatalf("Restore: %s", err)
	}

	if err := c.RestoreShell(); err != nil {
		t.Fatalf("RestoreShell: %s", err)
	}
}
