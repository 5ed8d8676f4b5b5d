package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/quizmaster-backend/internal/apiclient"
	"github.com/stemsi/quizmaster-backend/internal/model"
	"github.com/stemsi/quizmaster-backend/internal/quiz"
	"github.com/stemsi/quizmaster-backend/internal/report"
	"github.com/stemsi/quizmaster-backend/internal/response"
	"golang.org/x/term"
)

const playHelp = `Commands:
  1-4      toggle option        n / p    next / previous
  g <n>    go to question n     r        mark for review
  t        question overview    s        submit
  q        quit (progress is kept on the server)`

var errQuit = errors.New("quit")

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Start or resume an attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminal(os.Stdin, cmd.OutOrStdout())
			client := apiclient.New(serverURL, nil)
			if err := login(cmd.Context(), client, ui); err != nil {
				return err
			}
			return play(cmd.Context(), client, ui)
		},
	}
}

func newAttemptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempts",
		Short: "List finished attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminal(os.Stdin, cmd.OutOrStdout())
			client := apiclient.New(serverURL, nil)
			if err := login(cmd.Context(), client, ui); err != nil {
				return err
			}
			attempts, err := client.Attempts(cmd.Context())
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				ui.println("No finished attempts yet.")
			}
			for _, a := range attempts {
				ui.printf("%s  %2d/%d  (%d attempted, %s)\n",
					a.FinishedAt.Local().Format("2006-01-02 15:04"), a.Score, a.Total, a.Attempted, a.Reason)
			}
			return nil
		},
	}
}

// ─── Terminal ───────────────────────────────────────────────────────

type terminal struct {
	in    *bufio.Reader
	out   io.Writer
	tty   bool
	width int
}

func newTerminal(in *os.File, out io.Writer) *terminal {
	t := &terminal{in: bufio.NewReader(in), out: out, width: 80}
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		t.tty = true
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			t.width = w
		}
	}
	return t
}

func (t *terminal) printf(format string, a ...any) { fmt.Fprintf(t.out, format, a...) }
func (t *terminal) println(a ...any)               { fmt.Fprintln(t.out, a...) }

func (t *terminal) prompt(label string) (string, error) {
	t.printf("%s", label)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *terminal) clear() {
	if t.tty {
		t.printf("\033[H\033[2J")
	}
}

func (t *terminal) rule() {
	t.println(strings.Repeat("─", min(t.width, 72)))
}

// wrap breaks s on spaces to the terminal width.
func (t *terminal) wrap(s string, indent int) string {
	limit := max(min(t.width, 100)-indent, 20)
	var b strings.Builder
	col := 0
	for _, word := range strings.Fields(s) {
		if col > 0 && col+len(word)+1 > limit {
			b.WriteString("\n" + strings.Repeat(" ", indent))
			col = 0
		} else if col > 0 {
			b.WriteByte(' ')
			col++
		}
		b.WriteString(word)
		col += len(word)
	}
	return b.String()
}

// ─── Flow ───────────────────────────────────────────────────────────

func login(ctx context.Context, client *apiclient.Client, ui *terminal) error {
	if token != "" {
		client.SetToken(token)
		return nil
	}
	addr := email
	for addr == "" {
		var err error
		if addr, err = ui.prompt("Email: "); err != nil {
			return err
		}
	}
	if _, err := client.Start(ctx, addr); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Details != "" {
			return fmt.Errorf("cannot start: %s", apiErr.Details)
		}
		return fmt.Errorf("cannot start: %w", err)
	}
	log.Debug().Str("server", serverURL).Msg("Token issued")
	return nil
}

func play(ctx context.Context, client *apiclient.Client, ui *terminal) error {
	view, err := client.StartSession(ctx)
	for err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Code == response.ErrQuizCompleted {
			ui.println("This attempt is already finished.")
			return showReport(ctx, client, ui)
		}
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
			return err
		}
		log.Warn().Err(err).Msg("Question fetch failed")
		ui.printf("Could not load questions: %s\n", apiErr.Details)
		if ans, _ := ui.prompt("Retry? [Y/n] "); strings.EqualFold(ans, "n") {
			return nil
		}
		view, err = client.Retry(ctx)
	}

	for {
		renderQuestion(ui, view)
		cmd, err := ui.prompt("> ")
		if err != nil {
			return nil
		}

		next, done, err := dispatch(ctx, client, ui, view, cmd)
		switch {
		case errors.Is(err, errQuit):
			ui.println("Progress saved. Run play again to resume.")
			return nil
		case errors.Is(err, report.ErrUnauthorized):
			return errors.New("token expired, run play again to start over")
		case err != nil:
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.Code == response.ErrQuizCompleted {
				ui.println("Time is up.")
				return showReport(ctx, client, ui)
			}
			log.Debug().Err(err).Str("input", cmd).Msg("Command failed")
			ui.printf("! %v\n", err)
			continue
		case done:
			return showReport(ctx, client, ui)
		}
		if next.Phase == quiz.PhaseCompleted {
			return showReport(ctx, client, ui)
		}
		view = next
	}
}

func dispatch(ctx context.Context, client *apiclient.Client, ui *terminal, view model.SessionView, input string) (model.SessionView, bool, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		next, err := client.Session(ctx)
		return next, false, err
	}

	switch cmd := fields[0]; cmd {
	case "n":
		next, err := client.Next(ctx)
		return next, false, err
	case "p":
		next, err := client.Prev(ctx)
		return next, false, err
	case "r":
		next, err := client.ToggleReview(ctx)
		return next, false, err
	case "g":
		if len(fields) < 2 {
			return view, false, errors.New("usage: g <question number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return view, false, err
		}
		next, err := client.GoTo(ctx, n-1)
		return next, false, err
	case "t":
		renderTiles(ui, view)
		return view, false, nil
	case "s":
		sum, err := client.Summary(ctx)
		if err != nil {
			return view, false, err
		}
		msg := fmt.Sprintf("You attempted %d of %d questions.", sum.Attempted, sum.Total)
		if sum.Reviewed > 0 {
			msg += fmt.Sprintf(" %d marked for review.", sum.Reviewed)
		}
		ui.println(msg)
		if ans, _ := ui.prompt("Submit now? [y/N] "); !strings.EqualFold(ans, "y") {
			return view, false, nil
		}
		if err := client.Finish(ctx); err != nil {
			return view, false, err
		}
		if msg, err := client.SubmitResults(ctx); err == nil {
			ui.println(msg)
		}
		return view, true, nil
	case "q":
		return view, false, errQuit
	case "?", "h", "help":
		ui.println(playHelp)
		return view, false, nil
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || view.Question == nil || n < 1 || n > len(view.Question.Options) {
		return view, false, fmt.Errorf("unknown command %q, ? for help", input)
	}
	next, err := client.Answer(ctx, view.Question.Options[n-1])
	return next, false, err
}

func renderQuestion(ui *terminal, v model.SessionView) {
	ui.clear()
	clock := v.Clock
	if v.Urgent {
		clock = "!! " + clock
	}
	ui.printf("Time left %s   Attempted %d/%d (%.0f%%)\n", clock, v.Attempted, v.Total, v.Progress)
	ui.rule()
	q := v.Question
	if q == nil {
		ui.println("No question loaded.")
		return
	}
	mark := ""
	if q.Reviewed {
		mark = "  [marked for review]"
	}
	ui.printf("Question %d of %d%s\n\n", q.Index+1, v.Total, mark)
	ui.printf("  %s\n\n", ui.wrap(q.Text, 2))
	for i, opt := range q.Options {
		box := "( )"
		if opt == q.Selected {
			box = "(x)"
		}
		ui.printf("  %d %s %s\n", i+1, box, ui.wrap(opt, 8))
	}
	ui.rule()
}

func renderTiles(ui *terminal, v model.SessionView) {
	var b strings.Builder
	for _, tile := range v.Tiles {
		glyph := "·"
		switch tile.Status {
		case quiz.TileAnswered:
			glyph = "●"
		case quiz.TileVisited:
			glyph = "○"
		}
		if tile.Reviewed {
			glyph += "?"
		}
		if tile.Current {
			glyph = "[" + glyph + "]"
		}
		fmt.Fprintf(&b, "%2d%s ", tile.Index+1, glyph)
	}
	ui.println(b.String())
	ui.println("● answered  ○ visited  ? marked for review")
	_, _ = ui.prompt("(enter to continue)")
}

func showReport(ctx context.Context, client *apiclient.Client, ui *terminal) error {
	rep, err := client.Report(ctx)
	if err != nil {
		return err
	}
	ui.clear()
	ui.printf("Score %d / %d   (%d attempted, %s)\n", rep.Score, rep.Total, rep.Attempted, rep.Reason)
	ui.rule()
	for _, row := range rep.Rows {
		verdict := "✗"
		if row.Correct {
			verdict = "✓"
		}
		ui.printf("%2d %s %s\n", row.Index+1, verdict, ui.wrap(row.Question, 5))
		ui.printf("     yours:   %s\n     correct: %s\n", row.YourAnswer, row.CorrectAnswer)
	}
	ui.rule()

	for {
		input, err := ui.prompt("Explain which row? (number, q to quit) ")
		if err != nil || input == "q" || input == "" {
			return nil
		}
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(rep.Rows) {
			ui.println("No such row.")
			continue
		}
		row := rep.Rows[n-1]
		text, err := client.Explain(ctx, row.Question, row.CorrectAnswer)
		switch {
		case errors.Is(err, report.ErrUnauthorized):
			ui.println(report.FallbackExplanation)
			ui.println("Your token expired. Run play again to start a new attempt.")
			return nil
		case err != nil:
			log.Warn().Err(err).Int("row", n).Msg("Explanation failed")
			ui.println(report.FallbackExplanation)
		default:
			ui.printf("\n  %s\n\n", ui.wrap(text, 2))
		}
	}
}
