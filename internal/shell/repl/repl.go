// Package repl implements the shell's read-eval-print loop: read a line,
// classify it as background/pipeline/single job, and dispatch to the
// launcher. It is the Go counterpart of shell.c's main/eval.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/launcher"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/signalgate"
	"github.com/ThomasStachovsky/linux-shell/internal/shell/token"
)

// Prompt is the interactive prompt text, matching spec.md §6 verbatim.
const Prompt = "# "

// LineReader is the line-editing/history collaborator spec.md §1 puts out
// of scope: this package only needs one blocking call that returns a line
// of input or io.EOF.
type LineReader interface {
	ReadLine() (string, error)
}

// scannerReader is the default LineReader: no editing, no history, just
// line-buffered reads off an io.Reader. Good enough for scripted input and
// for a terminal in canonical (cooked) mode, which is the shell's own tty
// state whenever it is not the foreground of some other job.
type scannerReader struct {
	s *bufio.Scanner
}

// NewScannerReader wraps r as a LineReader with no editing capability.
func NewScannerReader(r io.Reader) LineReader {
	return &scannerReader{s: bufio.NewScanner(r)}
}

func (sr *scannerReader) ReadLine() (string, error) {
	if !sr.s.Scan() {
		if err := sr.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sr.s.Text(), nil
}

// lineResult is one line produced by the REPL's persistent reader goroutine.
type lineResult struct {
	line string
	err  error
}

// REPL ties a LineReader to the launcher and job table.
type REPL struct {
	reader   LineReader
	launcher *launcher.Launcher
	table    *job.Table
	gate     *signalgate.Gate
	out      io.Writer
	lines    chan lineResult
}

// New builds a REPL reading from reader, dispatching through l, watching
// table between commands, and printing to out. It starts the single
// goroutine that will call reader.ReadLine for the REPL's whole lifetime.
func New(reader LineReader, l *launcher.Launcher, table *job.Table, gate *signalgate.Gate, out io.Writer) *REPL {
	r := &REPL{reader: reader, launcher: l, table: table, gate: gate, out: out, lines: make(chan lineResult)}
	go r.readLoop()
	return r
}

// readLoop is the only goroutine that ever calls reader.ReadLine. Abandoning
// a read on SIGINT must not spawn a second concurrent reader: most
// LineReader implementations (scannerReader's bufio.Scanner included) are
// unsafe for concurrent use, so two goroutines racing the same reader could
// corrupt its internal buffer or swallow a line the user typed. Instead,
// readLineCancelable below always selects against this one goroutine's
// output; an abandoned read's result, once it eventually arrives, is simply
// delivered as the next line.
func (r *REPL) readLoop() {
	for {
		line, err := r.reader.ReadLine()
		r.lines <- lineResult{line, err}
		if err != nil {
			return
		}
	}
}

// errAbandoned is returned internally when SIGINT interrupts a line read;
// the REPL treats it like an empty line.
var errAbandoned = errors.New("line abandoned")

// Run executes the read-eval-print loop until EOF or "quit", returning the
// shell's process exit code (always 0, per spec.md §6: "Shell exits 0 on
// quit or EOF on input").
func (r *REPL) Run() int {
	for {
		fmt.Fprint(r.out, Prompt)
		// watchjobs(FINISHED) between commands: report and reap any
		// background job that finished since the last prompt.
		r.table.Watch(r.out, false)

		line, err := r.readLineCancelable()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return 0
		}
		if errors.Is(err, errAbandoned) {
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if quit := r.eval(line); quit {
			return 0
		}
	}
}

// eval tokenizes and dispatches one input line. It returns true once
// "quit" has run, telling Run to stop.
func (r *REPL) eval(line string) (quit bool) {
	tokens, err := token.Tokenize(line)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return false
	}
	stages, bg, err := token.SplitStages(tokens)
	if err != nil {
		fmt.Fprintln(r.out, err)
		return false
	}
	if stages == nil {
		return false // blank line
	}

	if len(stages) == 1 {
		_, err = r.launcher.RunSingle(stages[0], bg)
	} else {
		_, err = r.launcher.RunPipeline(stages, bg)
	}
	if launcher.IsQuit(err) {
		return true
	}
	if err != nil {
		fmt.Fprintln(r.out, err)
	}
	return false
}

// readLineCancelable waits for the next line from the persistent reader
// goroutine, abandoning the wait if SIGINT arrives first. Per spec.md's
// Design Notes, this replaces the original's siglongjmp-to-REPL-top with a
// cancellation path the reader exposes instead of non-local control flow.
// On abandonment the read already in flight is left running: no critical
// section is held across this call, so there is nothing for it to corrupt,
// and its eventual result is simply picked up as the next call's line.
func (r *REPL) readLineCancelable() (string, error) {
	select {
	case res := <-r.lines:
		return res.line, res.err
	case <-r.gate.SIGINT():
		fmt.Fprintln(r.out)
		return "", errAbandoned
	}
}
