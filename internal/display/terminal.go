package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const clearScreen = "\033[H\033[2J"

var (
	termRegionStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	termBlockStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(16)
	termHighlightStyle = termBlockStyle.BorderForeground(lipgloss.Color("12"))
	termMissingStyle   = termBlockStyle.Foreground(lipgloss.Color("8"))
	termErrorStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Foreground(lipgloss.Color("9")).Padding(1, 2)
	termStatusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal previews the panel on a terminal. Operations complete
// synchronously, so WaitUntilReady never blocks.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, clearScreen)
	return err
}

func (t *Terminal) DrawRegion(layout Layout) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, RenderText(layout))
	return err
}

func (t *Terminal) WaitUntilReady(time.Duration) error {
	return nil
}

// RenderText renders layout as styled terminal text.
func RenderText(layout Layout) string {
	var b strings.Builder
	b.WriteString(termRegionStyle.Render(layout.Region))
	b.WriteString("\n")

	if layout.Error != nil {
		b.WriteString(termErrorStyle.Render(layout.Error.Title + "\n" + layout.Error.Detail))
	} else {
		cols := make([]string, 0, len(layout.Blocks))
		for _, blk := range layout.Blocks {
			style := termBlockStyle
			switch {
			case blk.Missing:
				style = termMissingStyle
			case blk.Highlight:
				style = termHighlightStyle
			}
			cols = append(cols, style.Render(strings.Join([]string{
				blk.StationID, blk.Wind, blk.Direction, blk.Temperature, blk.Observed,
			}, "\n")))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	}

	b.WriteString("\n")
	b.WriteString(termStatusStyle.Render(layout.StatusLine))
	return b.String()
}
