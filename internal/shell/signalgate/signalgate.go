// Package signalgate bridges OS signals into the job table. Go offers no
// way to run arbitrary code inside a true asynchronous signal handler, so
// the SIGCHLD handler of jobs.c becomes a channel drained by an ordinary
// goroutine: functionally a signalfd, which spec.md's own design notes call
// out as an acceptable substitute.
package signalgate

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
)

// Gate owns the shell's signal subscriptions: SIGCHLD drives job reaping,
// SIGINT is exposed for the REPL to cancel an in-progress line read.
type Gate struct {
	sigchld chan os.Signal
	sigint  chan os.Signal
	done    chan struct{}
}

// New subscribes to SIGCHLD and SIGINT, and puts the shell's own process
// into the same state jobs.c's main() does before its readline loop:
// SIGTSTP/SIGTTIN/SIGTTOU ignored, so background terminal I/O or an
// accidental ^Z can't stop the shell itself.
func New() *Gate {
	g := &Gate{
		sigchld: make(chan os.Signal, 16),
		sigint:  make(chan os.Signal, 16),
		done:    make(chan struct{}),
	}
	signal.Notify(g.sigchld, unix.SIGCHLD)
	signal.Notify(g.sigint, unix.SIGINT)
	signal.Ignore(unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	return g
}

// SIGINT returns the channel the REPL selects on to abandon the current
// input line.
func (g *Gate) SIGINT() <-chan os.Signal {
	return g.sigint
}

// Run drains SIGCHLD notifications into table.Reap until Close is called.
// It is meant to run in its own goroutine for the life of the shell.
func (g *Gate) Run(table *job.Table) {
	for {
		select {
		case <-g.sigchld:
			table.Reap()
		case <-g.done:
			return
		}
	}
}

// Close stops Run and releases the signal subscriptions.
func (g *Gate) Close() {
	signal.Stop(g.sigchld)
	signal.Stop(g.sigint)
	close(g.done)
}

// WrapChildSpawn brackets spawn (a cmd.Start call) with a reset of
// SIGTSTP/SIGTTIN/SIGTTOU to their default disposition, the Go equivalent
// of jobs.c's do_job resetting those three signals to SIG_DFL between fork
// and exec. SIGINT needs no such bracket: Go's runtime installs a real
// handler function for it (via signal.Notify in New), and POSIX exec
// already resets any non-SIG_IGN handler to SIG_DFL automatically, so a
// forked child gets default SIGINT behavior for free. SIGTSTP/SIGTTIN/
// SIGTTOU are explicitly SIG_IGN'd in the shell itself, and SIG_IGN *is*
// preserved across exec, so those three must be reset by hand or every
// child would inherit the shell's own terminal-stop immunity.
func (g *Gate) WrapChildSpawn(spawn func() error) error {
	signal.Reset(unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	defer signal.Ignore(unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	return spawn()
}
