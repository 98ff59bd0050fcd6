// Package cli provides terminal output for the marketplace command: coloured
// status lines and a progress bar that follows workflow steps.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// ProgressBar renders step progress on a single line.
type ProgressBar struct {
	total    int
	current  int
	width    int
	prefix   string
	label    string
	mu       sync.Mutex
	writer   io.Writer
	start    time.Time
	colorize bool
}

// NewProgressBar creates a bar for total steps.
func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{
		total:    total,
		width:    30,
		prefix:   prefix,
		writer:   os.Stdout,
		start:    time.Now(),
		colorize: isTerminal(os.Stdout),
	}
}

// SetWriter sets the output writer
func (pb *ProgressBar) SetWriter(w io.Writer) *ProgressBar {
	pb.writer = w
	pb.colorize = isTerminal(w)
	return pb
}

// SetWidth sets the width of the bar in cells.
func (pb *ProgressBar) SetWidth(width int) *ProgressBar {
	pb.width = width
	return pb
}

// Reset restarts the bar with a new total and prefix.
func (pb *ProgressBar) Reset(total int, prefix string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.total = total
	pb.current = 0
	pb.prefix = prefix
	pb.label = ""
	pb.start = time.Now()
}

// Step advances the bar by one and shows label next to it.
func (pb *ProgressBar) Step(label string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current++
	if pb.current > pb.total {
		pb.total = pb.current
	}
	pb.label = label
	pb.render()
}

// Finish completes the line. A failed run leaves the bar where it stopped.
func (pb *ProgressBar) Finish(ok bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if ok {
		pb.current = pb.total
		pb.label = "done"
	}
	pb.render()
	fmt.Fprintln(pb.writer)
}

func (pb *ProgressBar) render() {
	percent := 1.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total)
	}
	filled := int(float64(pb.width) * percent)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)
	if pb.colorize {
		switch {
		case percent < 0.5:
			bar = ColorYellow + bar + ColorReset
		case percent < 1.0:
			bar = ColorCyan + bar + ColorReset
		default:
			bar = ColorGreen + bar + ColorReset
		}
	}

	output := fmt.Sprintf("\r%s [%s] %d/%d %s", pb.prefix, bar, pb.current, pb.total, formatDuration(time.Since(pb.start)))
	if pb.label != "" {
		output += " " + pb.label
	}
	fmt.Fprint(pb.writer, output)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
