package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// Format selects how command results are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Color is an ANSI escape sequence.
type Color string

const (
	ColorReset  Color = "\033[0m"
	ColorRed    Color = "\033[31m"
	ColorGreen  Color = "\033[32m"
	ColorYellow Color = "\033[33m"
	ColorBlue   Color = "\033[34m"
	ColorCyan   Color = "\033[36m"
	ColorBold   Color = "\033[1m"
	ColorDim    Color = "\033[2m"
)

var ansiPattern = regexp.MustCompile("\033\\[[0-9;]*m")

// Formatter writes command output. All methods are safe for concurrent use.
type Formatter struct {
	mu           sync.Mutex
	writer       io.Writer
	format       Format
	colorEnabled bool
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// NewFormatter creates a Formatter writing text to stdout.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		writer:       os.Stdout,
		format:       FormatText,
		colorEnabled: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.writer = w
	}
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) {
		f.format = format
	}
}

// WithColor enables or disables ANSI colors.
func WithColor(enabled bool) Option {
	return func(f *Formatter) {
		f.colorEnabled = enabled
	}
}

// Format returns the output format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// Println writes a formatted line.
func (f *Formatter) Println(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.writer, format+"\n", args...)
	return err
}

// Colorize wraps text in color when colors are enabled.
func (f *Formatter) Colorize(text string, color Color) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.colorEnabled {
		return text
	}
	return string(color) + text + string(ColorReset)
}

func (f *Formatter) Success(format string, args ...any) error {
	return f.Println("%s", f.Colorize("✓ "+fmt.Sprintf(format, args...), ColorGreen))
}

func (f *Formatter) Error(format string, args ...any) error {
	return f.Println("%s", f.Colorize("✗ "+fmt.Sprintf(format, args...), ColorRed))
}

func (f *Formatter) Warning(format string, args ...any) error {
	return f.Println("%s", f.Colorize("⚠ "+fmt.Sprintf(format, args...), ColorYellow))
}

func (f *Formatter) Info(format string, args ...any) error {
	return f.Println("%s", f.Colorize("ℹ "+fmt.Sprintf(format, args...), ColorBlue))
}

func (f *Formatter) Bold(text string) string {
	return f.Colorize(text, ColorBold)
}

func (f *Formatter) Dim(text string) string {
	return f.Colorize(text, ColorDim)
}

// Header writes a bold title underlined to its width.
func (f *Formatter) Header(msg string) error {
	return f.Println("%s\n%s", f.Bold(msg), strings.Repeat("─", utf8.RuneCountInString(msg)))
}

func (f *Formatter) SubHeader(msg string) error {
	return f.Println("%s", f.Colorize(msg, ColorCyan))
}

// Item writes an indented key-value line.
func (f *Formatter) Item(key, value string) error {
	return f.Println("  %s: %s", f.Dim(key), value)
}

// Badge renders a colored dot followed by label.
func (f *Formatter) Badge(label string, color Color) string {
	return f.Colorize("●", color) + " " + f.Colorize(label, color)
}

// Connectivity renders a connectivity state as a badge.
func (f *Formatter) Connectivity(state offline.ConnectivityState) string {
	return f.Badge(state.String(), ConnectivityColor(state))
}

// Freshness renders a load result's freshness.
func (f *Formatter) Freshness(fr offline.Freshness) string {
	return f.Colorize(string(fr), FreshnessColor(fr))
}

// Queue renders a scope's outbox depth: green when empty, yellow while
// writes wait and red once any of them is blocked.
func (f *Formatter) Queue(pending, blocked int) string {
	switch {
	case pending == 0:
		return f.Colorize("in sync", ColorGreen)
	case blocked > 0:
		return f.Colorize(fmt.Sprintf("%d waiting (%d blocked)", pending, blocked), ColorRed)
	default:
		return f.Colorize(fmt.Sprintf("%d waiting", pending), ColorYellow)
	}
}

// TableColumn defines a column in a table.
type TableColumn struct {
	Header     string
	AlignRight bool
}

// TableData represents data for table formatting.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// Table writes rows under a bold header. Widths ignore color codes, so
// colored cells line up with plain ones.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}

	widths := make([]int, len(data.Columns))
	for i, col := range data.Columns {
		widths[i] = visibleLen(col.Header)
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = pad(col.Header, widths[i], col.AlignRight)
		rules[i] = strings.Repeat("-", widths[i])
	}

	var b strings.Builder
	b.WriteString(f.Bold(strings.Join(headers, "  ")))
	b.WriteString("\n")
	b.WriteString(strings.Join(rules, "  "))
	for _, row := range data.Rows {
		cells := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			if i < len(row) {
				cells[i] = pad(row[i], widths[i], col.AlignRight)
			} else {
				cells[i] = strings.Repeat(" ", widths[i])
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	return f.Println("%s", b.String())
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

func pad(text string, width int, right bool) string {
	n := width - visibleLen(text)
	if n <= 0 {
		return text
	}
	if right {
		return strings.Repeat(" ", n) + text
	}
	return text + strings.Repeat(" ", n)
}

// JSON writes data as indented JSON.
func (f *Formatter) JSON(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Spinner animates a message on one line while a foreground sync runs.
type Spinner struct {
	message string
	writer  io.Writer
	colored bool
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StartSpinner starts a spinner on the formatter's writer. It returns nil
// for JSON output; Stop on a nil Spinner does nothing.
func (f *Formatter) StartSpinner(message string) *Spinner {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.format == FormatJSON {
		return nil
	}

	s := &Spinner{
		message: message,
		writer:  f.writer,
		colored: f.colorEnabled,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.animate(80 * time.Millisecond)
	return s
}

// Stop ends the animation and clears the line.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		_, _ = fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", utf8.RuneCountInString(s.message)+2))
	})
}

func (s *Spinner) animate(interval time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			if s.colored {
				frame = string(ColorCyan) + frame + string(ColorReset)
			}
			_, _ = fmt.Fprintf(s.writer, "\r%s %s", frame, s.message)
		}
	}
}
