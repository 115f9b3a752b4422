package token

import "testing"

func TestTokenizeClassifiesOperators(t *testing.T) {
	toks, err := Tokenize("cat file.txt | wc -l > out.txt &")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []Token{
		{Kind: Word, Value: "cat"},
		{Kind: Word, Value: "file.txt"},
		{Kind: Pipe, Value: "|"},
		{Kind: Word, Value: "wc"},
		{Kind: Word, Value: "-l"},
		{Kind: Output, Value: ">"},
		{Kind: Word, Value: "out.txt"},
		{Kind: Background, Value: "&"},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("token %d: got %+v, want %+v", i, toks[i], want[i])
		}
	}
}

func TestSplitStagesBackgroundFlag(t *testing.T) {
	toks, _ := Tokenize("sleep 30 &")
	stages, bg, err := SplitStages(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bg {
		t.Fatalf("expected background flag to be set")
	}
	if len(stages) != 1 || len(stages[0]) != 2 {
		t.Fatalf("unexpected stages: %v", stages)
	}
}

func TestSplitStagesPipeline(t *testing.T) {
	toks, _ := Tokenize("cat < file.txt | wc -l")
	stages, bg, err := SplitStages(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if bg {
		t.Fatalf("did not expect background flag")
	}
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages, got %d: %v", len(stages), stages)
	}
	if len(stages[0]) != 3 || stages[0][1].Kind != Input {
		t.Fatalf("unexpected first stage: %v", stages[0])
	}
	if len(stages[1]) != 2 {
		t.Fatalf("unexpected second stage: %v", stages[1])
	}
}

func TestSplitStagesEmptyLine(t *testing.T) {
	stages, bg, err := SplitStages(nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if stages != nil || bg {
		t.Fatalf("expected nil stages and no background flag for an empty line")
	}
}

func TestSplitStagesRejectsEmptyStage(t *testing.T) {
	tests := map[string]string{
		"leading pipe":           "| wc -l",
		"trailing pipe":          "cat |",
		"double pipe":            "cat | | wc -l",
		"dangling redirection":   "cat <",
		"background before pipe": "cat & | wc -l",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			toks, _ := Tokenize(line)
			if _, _, err := SplitStages(toks); err == nil {
				t.Fatalf("expected a syntax error for %q", line)
			}
		})
	}
}
