package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/pkgbench/pkgbench/internal/scheduler"
)

// Styles contains the lipgloss styles for the run summary
type Styles struct {
	Title     lipgloss.Style
	Level     lipgloss.Style
	Target    lipgloss.Style
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	Skipped   lipgloss.Style
	Pending   lipgloss.Style
	Note      lipgloss.Style
}

// DefaultStyles returns the default summary styles
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Level:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Target:    lipgloss.NewStyle().Bold(true),
		Succeeded: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Skipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Note:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// plainStyles renders without any styling, for non-TTY output.
func plainStyles() Styles {
	return Styles{}
}

// Status icons
const (
	iconSucceeded = "✓"
	iconFailed    = "✗"
	iconSkipped   = "-"
	iconPending   = "…"
)

// timeRound trims durations to whole seconds in the summary.
const timeRound = time.Second

// passSummary pairs one scheduler pass with its parallelism level.
type passSummary struct {
	Level  string
	Result *scheduler.Result
}

// renderSummary formats the per-pass, per-target outcomes for stdout.
func renderSummary(passes []passSummary, worst int, halted bool) string {
	styles := plainStyles()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		styles = DefaultStyles()
	}
	return renderSummaryWith(styles, passes, worst, halted)
}

func renderSummaryWith(styles Styles, passes []passSummary, worst int, halted bool) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Run summary"))
	b.WriteString("\n")

	for _, pass := range passes {
		b.WriteString(styles.Level.Render(fmt.Sprintf("parallelism %s:", pass.Level)))
		b.WriteString("\n")
		for _, tr := range pass.Result.Targets {
			b.WriteString("  ")
			b.WriteString(renderTarget(styles, tr))
			b.WriteString("\n")
		}
	}

	if halted {
		b.WriteString(styles.Note.Render("halted on first failure"))
		b.WriteString("\n")
	}
	if worst == 0 {
		b.WriteString(styles.Succeeded.Render("all targets succeeded"))
	} else {
		b.WriteString(styles.Failed.Render(fmt.Sprintf("worst status: %d", worst)))
	}
	b.WriteString("\n")
	return b.String()
}

func renderTarget(styles Styles, tr scheduler.TargetResult) string {
	name := styles.Target.Render(tr.Target)
	switch tr.Final {
	case scheduler.StatusSkipped:
		return fmt.Sprintf("%s %s (%s)", styles.Skipped.Render(iconSkipped), name, tr.SkipReason)
	case scheduler.StatusPending:
		return fmt.Sprintf("%s %s not run", styles.Pending.Render(iconPending), name)
	case scheduler.StatusPreserved:
		return fmt.Sprintf("%s %s status %d, instance %s kept for inspection",
			styles.Failed.Render(iconFailed), name, tr.Status, tr.Instance)
	default:
		if tr.Status != 0 {
			return fmt.Sprintf("%s %s status %d", styles.Failed.Render(iconFailed), name, tr.Status)
		}
		return fmt.Sprintf("%s %s %s", styles.Succeeded.Render(iconSucceeded), name, tr.Duration.Round(timeRound))
	}
}
