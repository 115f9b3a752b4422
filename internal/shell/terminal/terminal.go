// Package terminal owns the controlling tty: who it belongs to, and what
// mode it is in. It is the Go counterpart of jobs.c's initjobs tty setup and
// monitorjob's tcsetpgrp handoff, using golang.org/x/sys/unix's typed ioctl
// helpers instead of raw syscall.Syscall + unsafe.Pointer.
package terminal

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	ierrors "github.com/ThomasStachovsky/linux-shell/internal/errors"
)

// Controller owns a dup'd handle on the shell's controlling terminal and the
// shell's own saved terminal modes.
type Controller struct {
	fd       int
	shellPgid int
	saved    unix.Termios
}

// New dups fd 0, verifies it is a tty, takes ownership of it on the shell's
// own process group, and snapshots the current terminal modes.
func New() (*Controller, error) {
	if _, err := unix.IoctlGetTermios(0, unix.TCGETS); err != nil {
		return nil, fmt.Errorf("stdin is not a controlling terminal: %w", err)
	}

	fd, err := unix.Dup(0)
	if err != nil {
		return nil, errors.Wrap(err, "dup stdin")
	}
	unix.CloseOnExec(fd)

	pgid, err := unix.Getpgid(os.Getpid())
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "getpgid")
	}

	c := &Controller{fd: fd, shellPgid: pgid}
	if err := c.giveTo(pgid); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "tcsetpgrp")
	}
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "tcgetattr")
	}
	c.saved = *saved
	return c, nil
}

// GiveTo hands the controlling terminal to the given process group, the
// tcsetpgrp half of a job's foreground handoff.
func (c *Controller) GiveTo(pgid int) error {
	return c.giveTo(pgid)
}

func (c *Controller) giveTo(pgid int) error {
	if err := unix.IoctlSetPointerInt(c.fd, unix.TIOCSPGRP, pgid); err != nil {
		return fmt.Errorf("tcsetpgrp(%d): %w", pgid, err)
	}
	return nil
}

// ForegroundPgid returns the process group currently owning the terminal.
func (c *Controller) ForegroundPgid() (int, error) {
	return unix.IoctlGetInt(c.fd, unix.TIOCGPGRP)
}

// RestoreShell gives the terminal back to the shell's own process group and
// restores the shell's own terminal modes.
func (c *Controller) RestoreShell() error {
	if err := c.giveTo(c.shellPgid); err != nil {
		return err
	}
	return ierrors.Wrap(unix.IoctlSetTermios(c.fd, unix.TCSETS, &c.saved))
}

// Snapshot returns the terminal's current mode settings, to be restored
// later via Restore (used when a foreground job is stopped and demoted to
// the background, so resuming it in the foreground can put back whatever
// mode it left the terminal in, e.g. an editor's raw mode).
func (c *Controller) Snapshot() (unix.Termios, error) {
	t, err := unix.IoctlGetTermios(c.fd, unix.TCGETS)
	if err != nil {
		return unix.Termios{}, errors.Wrap(err, "tcgetattr")
	}
	return *t, nil
}

// Restore applies previously captured terminal modes.
func (c *Controller) Restore(t unix.Termios) error {
	return ierrors.Wrap(unix.IoctlSetTermios(c.fd, unix.TCSETS, &t))
}

// Close releases the dup'd terminal fd.
func (c *Controller) Close() error {
	return ierrors.Wrap(unix.Close(c.fd))
}
