// Package cli wires the shell's components together and defines its
// entrypoint, following the Run() int / flag-globals pattern of
// internal/jobworker/cli's jobworker CLI.
package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/builtins"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/launcher"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/monitor"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/repl"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/signalgate"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/terminal"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/token"
)

var commandFlag = flag.String("c", "", "run a single command line instead of entering the interactive REPL")

const (
	ecSuccess = iota
	// ecNotATTY indicates stdin is not a controlling terminal, which job
	// control has no meaning without (spec.md §1 Non-goals: "job-control
	// over non-tty input").
	ecNotATTY
)

// Run is the shell's entrypoint.
func Run() int {
	flag.Parse()

	term, err := terminal.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shell: %s\n", err)
		return ecNotATTY
	}
	defer term.Close()

	table := job.NewTable()
	gate := signalgate.New()
	defer gate.Close()
	go gate.Run(table)

	mon := monitor.New(table, term)
	bi := builtins.New(table, term, mon, os.Stdout)
	l := launcher.New(table, mon, gate, bi, os.Stdout)

	if *commandFlag != "" {
		return runOnce(l, *commandFlag)
	}

	r := repl.New(repl.NewScannerReader(os.Stdin), l, table, gate, os.Stdout)
	return r.Run()
}

// runOnce handles the -c flag: tokenize and launch exactly one line, then
// exit with its status, without ever entering the interactive prompt loop
// (no prompt, no SIGINT cancellation, no between-command watchjobs pass —
// none of those have meaning for a single one-shot command).
func runOnce(l *launcher.Launcher, line string) int {
	tokens, err := token.Tokenize(line)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	stages, bg, err := token.SplitStages(tokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if stages == nil {
		return ecSuccess
	}

	if len(stages) == 1 {
		status, err := l.RunSingle(stages[0], bg)
		if err != nil && !launcher.IsQuit(err) {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return status
	}
	status, err := l.RunPipeline(stages, bg)
	if err != nil && !launcher.IsQuit(err) {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return status
}
