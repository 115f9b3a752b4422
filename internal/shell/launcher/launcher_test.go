package launcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ThomasStachovsky/linux-shell/internal/shell/token"
)

func TestParseRedirLastWins(t *testing.T) {
	toks := []token.Token{
		{Kind: token.Word, Value: "cat"},
		{Kind: token.Output, Value: ">"},
		{Kind: token.Word, Value: "a"},
		{Kind: token.Output, Value: ">"},
		{Kind: token.Word, Value: "b"},
	}
	remaining, r, err := parseRedir(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if r.output != "b" {
		t.Fatalf("expected last output redirection to win, got %q", r.output)
	}
	if len(remaining) != 1 || remaining[0].Value != "cat" {
		t.Fatalf("expected only the command word to remain, got %v", remaining)
	}
}

func TestParseRedirInputAndOutput(t *testing.T) {
	toks := []token.Token{
		{Kind: token.Word, Value: "sort"},
		{Kind: token.Input, Value: "<"},
		{Kind: token.Word, Value: "in.txt"},
		{Kind: token.Output, Value: ">"},
		{Kind: token.Word, Value: "out.txt"},
	}
	remaining, r, err := parseRedir(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if r.input != "in.txt" || r.output != "out.txt" {
		t.Fatalf("unexpected redirections: %+v", r)
	}
	argv := wordsToArgv(remaining)
	if len(argv) != 1 || argv[0] != "sort" {
		t.Fatalf("unexpected remaining words: %v", argv)
	}
}

func TestResolvePathWithSlashIsUsedAsIs(t *testing.T) {
	got, err := resolvePath("./foo")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != "./foo" {
		t.Fatalf("expected path to be returned unchanged, got %q", got)
	}
}

func TestResolvePathSearchesPATH(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "myprog")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write fixture: %s", err)
	}

	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", dir)

	got, err := resolvePath("myprog")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != exe {
		t.Fatalf("got %q, want %q", got, exe)
	}
}

func TestResolvePathNotFound(t *testing.T) {
	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", t.TempDir())

	if _, err := resolvePath("definitely-not-a-real-command"); err == nil {
		t.Fatalf("expected an error for a missing command")
	}
}

func TestStagesCommandJoinsWithPipe(t *testing.T) {
	got := stagesCommand([][]string{{"cat", "file"}, {"wc", "-l"}})
	want := "cat file | wc -l"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
