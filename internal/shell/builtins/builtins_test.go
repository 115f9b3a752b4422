package builtins

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/job"
)

func TestCdChangesDirectory(t *testing.T) {
	dir := t.TempDir()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %s", err)
	}
	defer func() { _ = os.Chdir(start) }()

	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.cd([]string{dir}); code != 0 {
		t.Fatalf("expected success, got code %d, output %q", code, buf.String())
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %s", err)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(cwd)
	if gotDir != wantDir {
		t.Fatalf("expected cwd %q, got %q", wantDir, gotDir)
	}
}

func TestCdNonexistentReportsError(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	if code := r.cd([]string{missing}); code != 1 {
		t.Fatalf("expected failure code 1, got %d", code)
	}
	want := "cd: No such file or directory: " + missing + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected output: got %q, want %q", buf.String(), want)
	}
}

func TestKillRejectsArgumentWithoutPercent(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.kill([]string{"1"}); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(buf.String(), "must start with '%'") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestKillRejectsWrongArgCount(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.kill(nil); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if code := r.kill([]string{"%1", "%2"}); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
}

func TestKillUnknownJob(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.kill([]string{"%1"}); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(buf.String(), "job not found") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestFgReportsJobNotFound(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.fgbg(nil, true); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(buf.String(), "job not found") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestFgInvalidJobNumber(t *testing.T) {
	var buf bytes.Buffer
	r := New(job.NewTable(), nil, nil, &buf)
	if code := r.fgbg([]string{"abc"}, true); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(buf.String(), "invalid job number") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestIsBuiltinRecognizesAllSix(t *testing.T) {
	r := New(job.NewTable(), nil, nil, &bytes.Buffer{})
	for _, name := range []string{"quit", "cd", "jobs", "fg", "bg", "kill"} {
		if !r.IsBuiltin(name) {
			t.Fatalf("expected %q to be recognized as a builtin", name)
		}
	}
	if r.IsBuiltin("echo") {
		t.Fatalf("echo should not be a builtin")
	}
}
