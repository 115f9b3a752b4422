// Package job keeps the shell's job table: the set of foreground and
// background jobs, their process groups, and the per-process exit/stop
// state reported back by the kernel through wait4(2).
//
// The table is guarded by a single mutex rather than literal SIGCHLD
// blocking: reaping happens off a signalgate-driven goroutine, and every
// other mutation goes through the same lock, which gives the same
// mutual-exclusion guarantee the C original gets from sigprocmask(SIG_BLOCK)
// around its critical sections.
package job

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ThomasStachovsky/linux-shell/internal/log"
)

// Logging goes to stderr rather than the teacher's os.Stdout convention:
// stdout here is the interactive shell's own output stream, and job
// bookkeeping diagnostics must not interleave with it.
var logger = log.New(os.Stderr, "job")

// Status is the aggregate state of a job or a single process within it.
type Status int

const (
	Running Status = iota
	Stopped
	Finished
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "suspended"
	case Finished:
		return "exited"
	}
	return "unknown"
}

// noStatus marks a process that hasn't exited yet.
const noStatus = -1

// FG is the reserved slot index for the foreground job. Background jobs
// occupy slots 1..N, reused once freed, matching jobs.c's allocjob.
const FG = 0

// maxResumeAttempts bounds how many times Monitor.Run re-sends SIGCONT to a job
// that refuses to leave the stopped state, matching jobs.c monitorjob's
// literal "tries++ <= 128".
const maxResumeAttempts = 128

// Process is a single member of a job's process group.
type Process struct {
	Pid    int
	Argv   []string
	State  Status
	Status int // raw wait status word, valid once State == Finished
}

// Job is a process group launched from one command line, pipeline or not.
type Job struct {
	Pgid    int
	Command string
	State   Status
	Procs   []*Process

	// Saved holds the terminal modes captured when this job was last
	// stopped and demoted from the foreground, restored if it is resumed in
	// the foreground again.
	Saved *unix.Termios

	occupied bool
}

// Table is the shell's job table. Slot 0 is always the foreground job;
// slots 1..N are background jobs, allocated and freed as jobs start and
// finish.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond
	jobs []*Job
}

// NewTable returns an empty table with the reserved foreground slot.
func NewTable() *Table {
	t := &Table{jobs: []*Job{{}}}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// allocLocked finds the lowest free background slot, or appends a new one.
func (t *Table) allocLocked() int {
	for i := 1; i < len(t.jobs); i++ {
		if !t.jobs[i].occupied {
			return i
		}
	}
	t.jobs = append(t.jobs, &Job{})
	return len(t.jobs) - 1
}

// AddJob allocates a job slot (FG if bg is false, else the lowest free
// background slot) and returns its index.
func (t *Table) AddJob(pgid int, bg bool, command string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addJobLocked(pgid, bg, command)
}

func (t *Table) addJobLocked(pgid int, bg bool, command string) int {
	idx := FG
	if bg {
		idx = t.allocLocked()
	}
	t.jobs[idx] = &Job{
		Pgid:     pgid,
		Command:  command,
		State:    Running,
		occupied: true,
	}
	return idx
}

// AddProc registers a process as a member of job j.
func (t *Table) AddProc(j int, pid int, argv []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addProcLocked(j, pid, argv)
}

func (t *Table) addProcLocked(j int, pid int, argv []string) {
	if j < 0 || j >= len(t.jobs) || !t.jobs[j].occupied {
		return
	}
	t.jobs[j].Procs = append(t.jobs[j].Procs, &Process{
		Pid:    pid,
		Argv:   argv,
		State:  Running,
		Status: noStatus,
	})
}

// Tx exposes the job-table registration primitives that may run inside a
// Do critical section: AddJob/AddProc without the section's own locking,
// since Do already holds the table's mutex for the duration of fn. A Tx is
// only valid for the lifetime of the Do call that produced it.
type Tx struct {
	t *Table
}

// AddJob is Table.AddJob, callable from inside a Do critical section.
func (tx *Tx) AddJob(pgid int, bg bool, command string) int {
	return tx.t.addJobLocked(pgid, bg, command)
}

// AddProc is Table.AddProc, callable from inside a Do critical section.
func (tx *Tx) AddProc(j int, pid int, argv []string) {
	tx.t.addProcLocked(j, pid, argv)
}

// Do runs fn while holding the table's lock, excluding Table.Reap's
// wait4-driven updates for the whole duration. The launcher uses this to
// bracket starting a job's child process(es) and registering them with
// AddJob/AddProc as one atomic step: without it, a fast-exiting child could
// be wait4'd and reaped by the signal-gate goroutine before its pid ever
// reached the table, leaving its Process permanently stuck at Running with
// no further SIGCHLD to correct it. This is the Go equivalent of blocking
// SIGCHLD around fork+addjob+addproc in jobs.c (spec.md §4.4, §5).
func (t *Table) Do(fn func(tx *Tx)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&Tx{t: t})
}

// DelJob frees slot j. The caller must have already observed the job as
// Finished; calling DelJob on anything else would leak a still-running
// process group out of the table.
func (t *Table) DelJob(j int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delLocked(j)
}

func (t *Table) delLocked(j int) {
	if j == FG {
		t.jobs[FG] = &Job{}
		return
	}
	if j < 0 || j >= len(t.jobs) {
		return
	}
	t.jobs[j] = &Job{}
}

// moveLocked relocates job `from` into slot `to`, which must be free.
func (t *Table) moveLocked(from, to int) {
	t.jobs[to] = t.jobs[from]
	t.jobs[from] = &Job{}
}

// aggregate recomputes a job's State from its processes: Finished only once
// every process has exited, Stopped if any process remains stopped and none
// are running, Running otherwise.
func aggregate(j *Job) Status {
	anyStopped := false
	for _, p := range j.Procs {
		switch p.State {
		case Running:
			return Running
		case Stopped:
			anyStopped = true
		}
	}
	if anyStopped {
		return Stopped
	}
	return Finished
}

// Reap drains every pending wait4 status without blocking, the moral
// equivalent of jobs.c's sigchld_handler. It is meant to be called from the
// goroutine that owns the SIGCHLD channel (see internal/shell/signalgate).
func (t *Table) Reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil || pid <= 0 {
			return
		}
		t.update(pid, ws)
	}
}

func (t *Table) update(pid int, ws unix.WaitStatus) {
	t.mu.Lock()
	defer func() {
		t.cond.Broadcast()
		t.mu.Unlock()
	}()

	for _, j := range t.jobs {
		if !j.occupied && j != t.jobs[FG] {
			continue
		}
		for _, p := range j.Procs {
			if p.Pid != pid {
				continue
			}
			switch {
			case ws.Continued():
				p.State = Running
			case ws.Stopped():
				p.State = Stopped
			default:
				p.State = Finished
				p.Status = int(ws)
			}
			j.State = aggregate(j)
			return
		}
	}
	logger.Warnf("wait4 reported unknown pid %d", pid)
}

// ForegroundPgid returns the process group of the foreground job, or 0 if
// none is running.
func (t *Table) ForegroundPgid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jobs[FG].Pgid
}

// MaxResumeAttempts exposes the busy-stop bound to the monitor package.
func MaxResumeAttempts() int { return maxResumeAttempts }

// DemoteForeground moves the foreground job to a free background slot,
// snapshotting the terminal modes it should be restored to if resumed, and
// returns the new slot and the job's command text.
func (t *Table) DemoteForeground(saved unix.Termios) (slot int, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot = t.allocLocked()
	t.moveLocked(FG, slot)
	t.jobs[slot].Saved = &saved
	return slot, t.jobs[slot].Command
}

// ConsumeForeground reads the foreground job's exit status (the status of
// its last process, matching jobs.c's jobcmd/jobstate pairing) and frees the
// slot. Call only once the job has been observed Finished.
func (t *Table) ConsumeForeground() (exitStatus int, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.jobs[FG]
	command = j.Command
	if n := len(j.Procs); n > 0 {
		exitStatus = exitCode(j.Procs[n-1].Status)
	}
	t.delLocked(FG)
	return exitStatus, command
}

func exitCode(raw int) int {
	ws := unix.WaitStatus(raw)
	if ws.Exited() {
		return ws.ExitStatus()
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 0
}

// Watch prints one status line per occupied background job, reaping any
// that have finished. When all is false only Finished jobs are reported
// (the REPL's "watchjobs(FINISHED)" pass between commands); when true every
// state is reported (the "jobs" builtin).
func (t *Table) Watch(w io.Writer, all bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 1; i < len(t.jobs); i++ {
		j := t.jobs[i]
		if !j.occupied {
			continue
		}
		switch j.State {
		case Running:
			if all {
				fmt.Fprintf(w, "[%d] running '%s'\n", i, j.Command)
			}
		case Stopped:
			if all {
				fmt.Fprintf(w, "[%d] suspended '%s'\n", i, j.Command)
			}
		case Finished:
			reportFinished(w, i, j)
			t.delLocked(i)
		}
	}
}

func reportFinished(w io.Writer, idx int, j *Job) {
	if n := len(j.Procs); n > 0 {
		last := j.Procs[n-1]
		ws := unix.WaitStatus(last.Status)
		if ws.Signaled() {
			fmt.Fprintf(w, "[%d] killed '%s' by signal %d\n", idx, j.Command, int(ws.Signal()))
			return
		}
	}
	fmt.Fprintf(w, "[%d] exited '%s', status=%d\n", idx, j.Command, exitCodeOf(j))
}

func exitCodeOf(j *Job) int {
	if n := len(j.Procs); n > 0 {
		return exitCode(j.Procs[n-1].Status)
	}
	return 0
}

// Resolve picks the job to act on for fg/bg when no explicit job number is
// given: the highest-numbered occupied slot whose job has not Finished,
// matching jobs.c's convention of operating on "the" background job when %n
// is omitted.
func (t *Table) Resolve(explicit int, haveExplicit bool) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if haveExplicit {
		if explicit >= 1 && explicit < len(t.jobs) && t.jobs[explicit].occupied {
			return explicit, true
		}
		return 0, false
	}
	for i := len(t.jobs) - 1; i >= 1; i-- {
		if t.jobs[i].occupied && t.jobs[i].State != Finished {
			return i, true
		}
	}
	return 0, false
}

// Command returns job j's recorded command line, for status messages.
func (t *Table) Command(j int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j < 0 || j >= len(t.jobs) {
		return ""
	}
	return t.jobs[j].Command
}

// Kill sends SIGTERM to job j's process group (and SIGCONT first, in case
// it is stopped, so it can actually observe and act on the SIGTERM).
// Reports whether the job existed.
func (t *Table) Kill(j int) bool {
	t.mu.Lock()
	pgid := 0
	if j >= 1 && j < len(t.jobs) && t.jobs[j].occupied {
		pgid = t.jobs[j].Pgid
	}
	t.mu.Unlock()
	if pgid == 0 {
		return false
	}
	_ = unix.Kill(-pgid, unix.SIGCONT)
	_ = unix.Kill(-pgid, unix.SIGTERM)
	return true
}

// Shutdown terminates every remaining job in the table, the equivalent of
// jobs.c's shutdownjobs: used once when the shell itself is exiting.
func (t *Table) Shutdown() {
	t.mu.Lock()
	pgids := make([]int, 0, len(t.jobs))
	for i, j := range t.jobs {
		if i == FG && !j.occupied {
			continue
		}
		if j.occupied && j.Pgid > 0 {
			pgids = append(pgids, j.Pgid)
		}
	}
	t.mu.Unlock()

	for _, pgid := range pgids {
		_ = unix.Kill(-pgid, unix.SIGCONT)
		_ = unix.Kill(-pgid, unix.SIGTERM)
	}
}

// PromoteForBackground moves job j into the foreground slot, which must be
// free; used by fg when bringing a background job forward.
func (t *Table) PromoteForBackground(j int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jobs[FG].occupied {
		return false
	}
	t.moveLocked(j, FG)
	return true
}

// State returns job j's current aggregate state.
func (t *Table) State(j int) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j < 0 || j >= len(t.jobs) {
		return Finished
	}
	return t.jobs[j].State
}

// Pgid returns job j's process group id.
func (t *Table) Pgid(j int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j < 0 || j >= len(t.jobs) {
		return 0
	}
	return t.jobs[j].Pgid
}

// SavedTermios returns the terminal modes saved when job j was last demoted
// to the background, if any.
func (t *Table) SavedTermios(j int) *unix.Termios {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j < 0 || j >= len(t.jobs) {
		return nil
	}
	return t.jobs[j].Saved
}

// AnyProcStopped reports whether any process in job j is Stopped, used by
// Resume to distinguish "some processes were already running" from a job
// that needs no continuing at all.
func (t *Table) AnyProcStopped(j int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j < 0 || j >= len(t.jobs) {
		return false
	}
	for _, p := range t.jobs[j].Procs {
		if p.State == Stopped {
			return true
		}
	}
	return false
}

// Exists reports whether slot j holds a live (non-Finished) job, the guard
// monitor.Resume applies before acting on a job number.
func (t *Table) Exists(j int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return j >= 1 && j < len(t.jobs) && t.jobs[j].occupied && t.jobs[j].State != Finished
}

// AwaitChangeOnce blocks until the next table mutation, the equivalent of a
// single sigsuspend(mask) call: it does not loop until a particular
// condition holds, just until something happens.
func (t *Table) AwaitChangeOnce() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cond.Wait()
}

// AwaitForegroundChange blocks until the foreground job's state differs
// from `from`, the equivalent of monitorjob's "while (jobstate(FG) ==
// RUNNING) sigsuspend(mask)" loop specialized to a single state guard.
func (t *Table) AwaitForegroundChange(from Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.jobs[FG].State == from {
		t.cond.Wait()
	}
}

// AnyOccupied reports whether any slot (including the foreground one) still
// holds a job that has not Finished, used by shutdownjobs to know when every
// job has finished.
func (t *Table) AnyOccupied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.occupied && j.State != Finished {
			return true
		}
	}
	return false
}
