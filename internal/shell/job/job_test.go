package job

import (
	"bytes"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestAddJobSlotAssignment(t *testing.T) {
	tbl := NewTable()

	fg := tbl.AddJob(100, false, "sleep 1")
	if fg != FG {
		t.Fatalf("expected foreground job in slot %d, got %d", FG, fg)
	}

	bg1 := tbl.AddJob(200, true, "sleep 2")
	if bg1 != 1 {
		t.Fatalf("expected first background job in slot 1, got %d", bg1)
	}

	bg2 := tbl.AddJob(300, true, "sleep 3")
	if bg2 != 2 {
		t.Fatalf("expected second background job in slot 2, got %d", bg2)
	}
}

func TestResolveExplicitAndDefault(t *testing.T) {
	tbl := NewTable()
	j1 := tbl.AddJob(100, true, "a")
	j2 := tbl.AddJob(200, true, "b")

	if got, ok := tbl.Resolve(j1, true); !ok || got != j1 {
		t.Fatalf("explicit resolve: got (%d, %v), want (%d, true)", got, ok, j1)
	}
	if _, ok := tbl.Resolve(99, true); ok {
		t.Fatalf("explicit resolve of unknown slot should fail")
	}
	if got, ok := tbl.Resolve(0, false); !ok || got != j2 {
		t.Fatalf("default resolve: got (%d, %v), want highest slot %d", got, ok, j2)
	}
}

// runProc starts name in its own process group and registers it as job j's
// sole process, returning its pid.
func runProc(t *testing.T, tbl *Table, name string, args ...string) (j, pid int) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("%s not available: %s", name, err)
	}
	pid = cmd.Process.Pid
	_ = cmd.Process.Release()
	argv := append([]string{name}, args...)
	j = tbl.AddJob(pid, true, strings.Join(argv, " "))
	tbl.AddProc(j, pid, argv)
	return j, pid
}

func reapUntil(t *testing.T, tbl *Table, j int, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for tbl.State(j) != want {
		if time.Now().After(deadline) {
			t.Fatalf("job %d did not reach state %v in time (state=%v)", j, want, tbl.State(j))
		}
		tbl.Reap()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExitedJobReportsStatusAndFreesSlot(t *testing.T) {
	tbl := NewTable()
	j, _ := runProc(t, tbl, "true")

	reapUntil(t, tbl, j, Finished)

	var buf bytes.Buffer
	tbl.Watch(&buf, true)
	if !strings.Contains(buf.String(), "exited 'true', status=0") {
		t.Fatalf("unexpected watch output: %q", buf.String())
	}
	if tbl.Exists(j) {
		t.Fatalf("job %d should be freed after being reported", j)
	}
}

func TestKilledJobReportsSignal(t *testing.T) {
	tbl := NewTable()
	j, _ := runProc(t, tbl, "sleep", "30")

	if !tbl.Kill(j) {
		t.Fatalf("expected job %d to be found", j)
	}
	reapUntil(t, tbl, j, Finished)

	var buf bytes.Buffer
	tbl.Watch(&buf, true)
	if !strings.Contains(buf.String(), "killed 'sleep 30' by signal 15") {
		t.Fatalf("unexpected watch output: %q", buf.String())
	}
}

// TestDoExcludesConcurrentReap guards against the race Table.Do exists to
// close: a child whose pid is registered inside Do must not have its status
// applied by a concurrent Reap call until AddJob/AddProc have registered it,
// or its exit status is lost for good (job.go's update logs "unknown pid"
// and discards it).
func TestDoExcludesConcurrentReap(t *testing.T) {
	tbl := NewTable()
	cmd := exec.Command("true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("true not available: %s", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	reaped := make(chan struct{})
	var j int
	tbl.Do(func(tx *Tx) {
		// Give the child every chance to have already exited, so a Reap
		// racing this critical section would, without the Do/Tx exclusion,
		// observe an unregistered pid.
		time.Sleep(20 * time.Millisecond)
		go func() {
			tbl.Reap()
			close(reaped)
		}()
		j = tx.AddJob(pid, true, "true")
		tx.AddProc(j, pid, []string{"true"})
	})
	<-reaped // only reachable once Do released the lock this registered under

	reapUntil(t, tbl, j, Finished)

	var buf bytes.Buffer
	tbl.Watch(&buf, true)
	if !strings.Contains(buf.String(), "exited 'true', status=0") {
		t.Fatalf("exit status was lost to a race with Reap: %q", buf.String())
	}
}

func TestAllocLockedReusesFreedSlot(t *testing.T) {
	tbl := NewTable()
	j, _ := runProc(t, tbl, "true")
	reapUntil(t, tbl, j, Finished)

	var buf bytes.Buffer
	tbl.Watch(&buf, true) // frees slot j

	j2 := tbl.AddJob(999, true, "true")
	if j2 != j {
		t.Fatalf("expected freed slot %d to be reused, got %d", j, j2)
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := map[string]struct {
		procs []*Process
		want  Status
	}{
		"all running": {
			procs: []*Process{{State: Running}, {State: Running}},
			want:  Running,
		},
		"one running one stopped": {
			procs: []*Process{{State: Running}, {State: Stopped}},
			want:  Running,
		},
		"all stopped": {
			procs: []*Process{{State: Stopped}, {State: Stopped}},
			want:  Stopped,
		},
		"all finished": {
			procs: []*Process{{State: Finished}, {State: Finished}},
			want:  Finished,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			j := &Job{Procs: tc.procs}
			if got := aggregate(j); got != tc.want {
				t.Fatalf("aggregate() = %v, want %v", got, tc.want)
			}
		})
	}
}
