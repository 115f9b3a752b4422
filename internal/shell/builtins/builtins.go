// Package builtins implements the shell's in-process commands: quit, cd,
// jobs, fg, bg and kill. It is the Go counterpart of command.c's
// builtin_command dispatch table.
package builtins

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/monitor"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/terminal"
	"github.com/ThomasStachovsky/linux-shell/internal/validator"
)

// names lists every recognized builtin, so the launcher's foreground fast
// path (and the "unknown command: fall through to external exec" rule) can
// tell a builtin apart from a PATH lookup without a dispatch attempt.
var names = map[string]bool{
	"quit": true,
	"cd":   true,
	"jobs": true,
	"fg":   true,
	"bg":   true,
	"kill": true,
}

// Runtime holds what the builtins need: the job table they read and
// mutate, the monitor fg/bg hand off to, and the terminal controller
// resumejob restores saved modes onto.
type Runtime struct {
	table *job.Table
	term  *terminal.Controller
	mon   *monitor.Monitor
	out   io.Writer
}

// New builds a builtins.Runtime over the shell's shared table/terminal/
// monitor, writing status lines and diagnostics to out.
func New(table *job.Table, term *terminal.Controller, mon *monitor.Monitor, out io.Writer) *Runtime {
	return &Runtime{table: table, term: term, mon: mon, out: out}
}

// IsBuiltin reports whether name is one of the six recognized commands.
func (r *Runtime) IsBuiltin(name string) bool {
	return names[name]
}

// Run dispatches argv[0] (already confirmed a builtin by IsBuiltin) and
// returns its exit code. quit is true only for the "quit" command, telling
// the REPL to stop reading lines after this call returns.
func (r *Runtime) Run(argv []string) (code int, quit bool) {
	switch argv[0] {
	case "quit":
		return r.quit(), true
	case "cd":
		return r.cd(argv[1:]), false
	case "jobs":
		return r.jobs(), false
	case "fg":
		return r.fgbg(argv[1:], true), false
	case "bg":
		return r.fgbg(argv[1:], false), false
	case "kill":
		return r.kill(argv[1:]), false
	}
	return 127, false
}

// quit implements shutdownjobs: every remaining job is sent SIGTERM (and
// SIGCONT, in case it's stopped), the shell blocks until all of them are
// Finished, and watchjobs(ALL) reports and frees the leftover slots before
// the REPL exits.
func (r *Runtime) quit() int {
	r.table.Shutdown()
	for r.table.AnyOccupied() {
		r.table.AwaitChangeOnce()
	}
	r.table.Watch(r.out, true)
	return 0
}

// cd changes the working directory to args[0], or $HOME if no argument was
// given. On failure it prints "cd: <strerror>: <path>", matching
// original_source/command.c's cd_command exactly (Go's *fs.PathError wraps
// the same errno-derived message a C strerror(3) call would produce).
func (r *Runtime) cd(args []string) int {
	path := os.Getenv("HOME")
	if len(args) > 0 {
		path = args[0]
	}
	if err := os.Chdir(path); err != nil {
		fmt.Fprintf(r.out, "cd: %s: %s\n", strerror(err), path)
		return 1
	}
	return 0
}

// strerror extracts the bare errno message from a chdir error ("no such
// file or directory") the way C's strerror(3) would render it, dropping
// Go's *fs.PathError wrapping ("chdir <path>: ...") so the path isn't
// printed twice.
func strerror(err error) string {
	var perr *fs.PathError
	msg := err.Error()
	if errors.As(err, &perr) {
		msg = perr.Err.Error()
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// jobs reports every job's state, reaping any that have finished, the Go
// equivalent of watchjobs(ALL).
func (r *Runtime) jobs() int {
	r.table.Watch(r.out, true)
	return 0
}

// fgbg resolves the job argument (explicit "fg 2"/"bg 2", or the
// highest-numbered live job if omitted) and resumes it, matching
// command.c's fg_command/bg_command thin wrappers around resumejob.
func (r *Runtime) fgbg(args []string, toForeground bool) int {
	explicit, have, err := parseJobArg(args)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return 1
	}
	j, ok := r.table.Resolve(explicit, have)
	if !ok {
		fmt.Fprintln(r.out, "job not found")
		return 1
	}
	if !monitor.Resume(r.table, r.term, r.out, j, toForeground) {
		fmt.Fprintln(r.out, "job not found")
		return 1
	}
	return 0
}

// parseJobArg accepts at most one bare job number ("fg 2"), not the "%n"
// form kill uses, matching spec.md §4.7's separate grammars for the two
// builtin families.
func parseJobArg(args []string) (n int, have bool, err error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	n, err = strconv.Atoi(args[0])
	if err != nil {
		return 0, false, fmt.Errorf("invalid job number: %s", args[0])
	}
	return n, true, nil
}

// kill implements kill %n: the argument must begin with '%'; the job's
// process group is sent SIGTERM, with a leading SIGCONT so a stopped
// member actually wakes up to observe it (job.Table.Kill does both).
func (r *Runtime) kill(args []string) int {
	v := validator.New()
	v.Assert(len(args) == 1, "usage: kill %job")
	if v.Err() == nil {
		v.Assert(strings.HasPrefix(args[0], "%"), "job argument must start with '%'")
	}
	if err := v.Err(); err != nil {
		fmt.Fprintf(r.out, "kill: %s\n", err)
		return 1
	}

	n, err := strconv.Atoi(args[0][1:])
	if err != nil {
		fmt.Fprintf(r.out, "kill: invalid job number: %s\n", args[0])
		return 1
	}
	if !r.table.Kill(n) {
		fmt.Fprintln(r.out, "job not found")
		return 1
	}
	return 0
}
