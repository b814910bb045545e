package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

func newTestFormatter(color bool) (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewFormatter(WithWriter(&buf), WithColor(color)), &buf
}

func TestNewFormatter(t *testing.T) {
	f := NewFormatter()
	if f.Format() != FormatText {
		t.Errorf("default format = %s, want %s", f.Format(), FormatText)
	}

	f = NewFormatter(WithFormat(FormatJSON))
	if f.Format() != FormatJSON {
		t.Errorf("format = %s, want %s", f.Format(), FormatJSON)
	}
}

func TestFormatter_Colorize(t *testing.T) {
	plain, _ := newTestFormatter(false)
	if got := plain.Colorize("stale", ColorYellow); got != "stale" {
		t.Errorf("Colorize() without color = %q", got)
	}

	colored, _ := newTestFormatter(true)
	want := string(ColorYellow) + "stale" + string(ColorReset)
	if got := colored.Colorize("stale", ColorYellow); got != want {
		t.Errorf("Colorize() = %q, want %q", got, want)
	}
}

func TestFormatter_Messages(t *testing.T) {
	tests := []struct {
		name   string
		write  func(f *Formatter)
		prefix string
	}{
		{"success", func(f *Formatter) { f.Success("applied %d", 2) }, "✓ applied 2"},
		{"error", func(f *Formatter) { f.Error("halted") }, "✗ halted"},
		{"warning", func(f *Formatter) { f.Warning("offline") }, "⚠ offline"},
		{"info", func(f *Formatter) { f.Info("queued") }, "ℹ queued"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newTestFormatter(false)
			tt.write(f)
			if got := buf.String(); got != tt.prefix+"\n" {
				t.Errorf("output = %q, want %q", got, tt.prefix+"\n")
			}
		})
	}
}

func TestFormatter_HeaderAndItem(t *testing.T) {
	f, buf := newTestFormatter(false)
	f.Header("Snapshot Cache")
	f.Item("Scopes", "3")

	want := "Snapshot Cache\n──────────────\n  Scopes: 3\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestFormatter_StateRendering(t *testing.T) {
	f, _ := newTestFormatter(false)

	if got := f.Connectivity(offline.Online); got != "● online" {
		t.Errorf("Connectivity(Online) = %q", got)
	}
	if got := f.Freshness(offline.Stale); got != "stale" {
		t.Errorf("Freshness(Stale) = %q", got)
	}

	queue := []struct {
		pending, blocked int
		want             string
	}{
		{0, 0, "in sync"},
		{3, 0, "3 waiting"},
		{3, 1, "3 waiting (1 blocked)"},
	}
	for _, tt := range queue {
		if got := f.Queue(tt.pending, tt.blocked); got != tt.want {
			t.Errorf("Queue(%d, %d) = %q, want %q", tt.pending, tt.blocked, got, tt.want)
		}
	}

	colored, _ := newTestFormatter(true)
	if got := colored.Queue(2, 1); !strings.HasPrefix(got, string(ColorRed)) {
		t.Errorf("blocked queue should render red, got %q", got)
	}
	if got := colored.Freshness(offline.Failed); !strings.HasPrefix(got, string(ColorRed)) {
		t.Errorf("failed freshness should render red, got %q", got)
	}
}

func TestFormatter_Table(t *testing.T) {
	f, buf := newTestFormatter(false)
	err := f.Table(TableData{
		Columns: []TableColumn{{Header: "SCOPE"}, {Header: "APPLIED", AlignRight: true}},
		Rows: [][]string{
			{"events:band-1", "2"},
			{"chat:band-1", "10"},
		},
	})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	want := strings.Join([]string{
		"SCOPE          APPLIED",
		"-------------  -------",
		"events:band-1        2",
		"chat:band-1         10",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatter_TableIgnoresColorCodes(t *testing.T) {
	f, buf := newTestFormatter(true)
	f.Table(TableData{
		Columns: []TableColumn{{Header: "STATE"}, {Header: "SCOPE"}},
		Rows: [][]string{
			{f.Colorize("halted", ColorRed), "events:band-1"},
			{"drained", "chat:band-1"},
		},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	first := strings.Index(ansiPattern.ReplaceAllString(lines[2], ""), "events")
	second := strings.Index(lines[3], "chat")
	if first != second {
		t.Errorf("colored row misaligned: scope at %d and %d\n%s", first, second, buf.String())
	}
}

func TestFormatter_TableShortRows(t *testing.T) {
	f, buf := newTestFormatter(false)
	f.Table(TableData{
		Columns: []TableColumn{{Header: "ID"}, {Header: "DATA"}},
		Rows:    [][]string{{"e1"}},
	})
	if !strings.Contains(buf.String(), "\ne1\n") {
		t.Errorf("short row not rendered:\n%q", buf.String())
	}

	empty, out := newTestFormatter(false)
	if err := empty.Table(TableData{}); err != nil || out.Len() != 0 {
		t.Errorf("Table() with no columns wrote %q, err %v", out.String(), err)
	}
}

func TestFormatter_JSON(t *testing.T) {
	f, buf := newTestFormatter(false)
	if err := f.JSON(map[string]int{"count": 2}); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["count"] != 2 {
		t.Errorf("count = %d, want 2", got["count"])
	}
	if !strings.Contains(buf.String(), "\n  \"count\"") {
		t.Errorf("expected indented output, got %q", buf.String())
	}
}

func TestFormatter_ConcurrentWrites(t *testing.T) {
	f, buf := newTestFormatter(true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Success("%s", f.Queue(1, 0))
		}()
	}
	wg.Wait()

	if n := strings.Count(buf.String(), "\n"); n != 20 {
		t.Errorf("got %d lines, want 20", n)
	}
}

// syncBuffer is a bytes.Buffer safe to write from the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatter_StartSpinner(t *testing.T) {
	var buf syncBuffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	s := f.StartSpinner("Syncing...")
	if s == nil {
		t.Fatal("StartSpinner() returned nil for text output")
	}
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "Syncing...") {
		t.Errorf("spinner never drew its message: %q", out)
	}
	if !strings.HasSuffix(out, "\r") {
		t.Errorf("spinner did not clear its line: %q", out)
	}
}

func TestFormatter_StartSpinnerJSON(t *testing.T) {
	f := NewFormatter(WithWriter(&bytes.Buffer{}), WithFormat(FormatJSON))
	s := f.StartSpinner("Syncing...")
	if s != nil {
		t.Error("StartSpinner() should be nil for JSON output")
	}
	s.Stop()
}
