package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/negilang/negi/pkg/negi"
)

// Color definitions for REPL output: errors in red, results in yellow,
// everything decorative in blue/cyan/green.
var (
	blueColor   = color.New(color.FgBlue)
	yellowColor = color.New(color.FgYellow)
	redColor    = color.New(color.FgRed)
	greenColor  = color.New(color.FgGreen)
	cyanColor   = color.New(color.FgCyan)
)

// repl is an interactive negi session: each line goes straight to
// pkg/negi.Eval (no program cache is involved), and a session id is
// stamped on trace output so interleaved runs in one process can be told
// apart.
type repl struct {
	Banner    string
	Version   string
	Prompt    string
	sessionID uuid.UUID
	trace     bool
}

func newREPL(version string, trace bool) *repl {
	return &repl{
		Banner:    "negi",
		Version:   version,
		Prompt:    "negi> ",
		sessionID: uuid.New(),
		trace:     trace,
	}
}

func (r *repl) printBanner(w io.Writer) {
	line := strings.Repeat("-", 40)
	blueColor.Fprintf(w, "%s\n", line)
	greenColor.Fprintf(w, "%s\n", r.Banner)
	blueColor.Fprintf(w, "%s\n", line)
	yellowColor.Fprintf(w, "version %s\n", r.Version)
	cyanColor.Fprintf(w, "Enter an expression, or a sequence of `;`-separated statements.\n")
	cyanColor.Fprintf(w, "Type ':quit' or press Ctrl-D to exit.\n")
	blueColor.Fprintf(w, "%s\n", line)
}

// start runs the REPL loop against stdin/stdout until the user exits.
// Unlike a negi program's own exit codes, a REPL input's exit code never
// terminates the process — it's just the value to show, same as a
// bare-integer expression's value would be if it reached cmd_exit.
func (r *repl) start(w io.Writer) error {
	r.printBanner(w)

	rl, err := readline.New(r.Prompt)
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			fmt.Fprintln(w, "bye")
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":exit" {
			fmt.Fprintln(w, "bye")
			return nil
		}
		rl.SaveHistory(line)
		r.eval(w, line)
	}
}

// eval runs one REPL line through pkg/negi.Eval. Each line is an
// independent evaluation — Eval never carries state between calls — so
// there is no persistent symbol table across lines: a fresh `let` is
// required on every line that wants one, rather than an accumulating
// top-level scope.
func (r *repl) eval(w io.Writer, line string) {
	if r.trace {
		cyanColor.Fprintf(w, "[%s] evaluating\n", r.sessionID)
	}
	code, diags := negi.Eval(line)
	if diags != "" {
		redColor.Fprint(w, diags)
		return
	}
	yellowColor.Fprintf(w, "=> %d\n", code)
}
