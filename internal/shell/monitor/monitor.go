// Package monitor hands the controlling terminal between the shell and a
// foreground job and blocks until that job either exits or stops, the Go
// counterpart of jobs.c's monitorjob and resumejob.
package monitor

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/terminal"
)

// Monitor couples a job table to the terminal it arbitrates access to.
type Monitor struct {
	table *job.Table
	term  *terminal.Controller
}

// New builds a Monitor over the given table and terminal controller.
func New(table *job.Table, term *terminal.Controller) *Monitor {
	return &Monitor{table: table, term: term}
}

// Run gives the terminal to the foreground job, kicks it with SIGCONT in
// case it was just created stopped, and blocks until it leaves the running
// state. If it stops, it is demoted to a background slot and its exit
// status is 0 (there is none yet); if it exits, its status is returned and
// the slot is freed.
func (m *Monitor) Run(out io.Writer) (exitStatus int, stopped bool) {
	pgid := m.table.ForegroundPgid()
	if pgid == 0 {
		return 0, false
	}

	if err := m.term.GiveTo(pgid); err != nil {
		fmt.Fprintf(out, "monitor: %s\n", err)
	}
	_ = unix.Kill(-pgid, unix.SIGCONT)

	tries := 0
	for m.table.State(job.FG) == job.Stopped && tries < job.MaxResumeAttempts() {
		tries++
		_ = unix.Kill(-pgid, unix.SIGCONT)
		m.table.AwaitForegroundChange(job.Stopped)
	}
	if m.table.State(job.FG) == job.Running {
		m.table.AwaitForegroundChange(job.Running)
	}

	if m.table.State(job.FG) == job.Stopped {
		saved, err := m.term.Snapshot()
		if err != nil {
			fmt.Fprintf(out, "monitor: %s\n", err)
		}
		slot, cmd := m.table.DemoteForeground(saved)
		fmt.Fprintf(out, "[%d] suspended '%s'\n", slot, cmd)
		stopped = true
	} else {
		exitStatus, _ = m.table.ConsumeForeground()
	}

	if err := m.term.RestoreShell(); err != nil {
		fmt.Fprintf(out, "monitor: %s\n", err)
	}
	return exitStatus, stopped
}

// Resume implements jobs.c's resumejob: it determines which of the three
// status messages applies, SIGCONTs job j's process group, waits once for a
// state change if the job was fully stopped, reports the message, and
// (for a foreground resume) moves the job into the foreground slot and
// blocks on Run. j must already have been resolved (job.Table.Resolve) to
// an occupied slot.
func Resume(table *job.Table, term *terminal.Controller, out io.Writer, j int, toForeground bool) bool {
	if !table.Exists(j) {
		return false
	}

	wasStopped := table.State(j) == job.Stopped
	// sendmsg: 2 = job fully stopped, 1 = running but some procs stopped,
	// 0 = already entirely running (no message).
	sendmsg := 2
	if !wasStopped {
		sendmsg = 0
		if table.AnyProcStopped(j) {
			sendmsg = 1
		}
	}

	pgid := table.Pgid(j)
	_ = unix.Kill(-pgid, unix.SIGCONT)
	if wasStopped {
		table.AwaitChangeOnce()
	}

	cmd := table.Command(j)
	switch sendmsg {
	case 2:
		fmt.Fprintf(out, "[%d] continue '%s'\n", j, cmd)
	case 1:
		fmt.Fprintf(out, "[%d] continue '%s' (some processes were already running)\n", j, cmd)
	}

	if toForeground {
		if table.PromoteForBackground(j) {
			if saved := table.SavedTermios(job.FG); saved != nil {
				_ = term.Restore(*saved)
			}
			New(table, term).Run(out)
		}
	}
	return true
}
