package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
)

// UI provides operator-facing output. In JSON mode every method except
// JSON is silent so stdout stays machine readable.
type UI struct {
	out      io.Writer
	errOut   io.Writer
	progress *mpb.Progress
	jsonMode bool
	// interactive enables bars and spinners.
	interactive bool
}

// NewUI creates a UI writing to out and errOut.
func NewUI(out, errOut io.Writer, jsonMode, noColor bool) *UI {
	if noColor {
		color.NoColor = true
	}
	return &UI{
		out:         out,
		errOut:      errOut,
		jsonMode:    jsonMode,
		interactive: !jsonMode && out == os.Stdout && IsTerminal(),
	}
}

// Close waits for any progress bars to finish rendering.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	if ui.interactive {
		ui.progress.Wait()
	} else {
		// Bars never render when piped and Wait may block.
		ui.progress.Shutdown()
	}
	ui.progress = nil
}

func (ui *UI) line(c color.Attribute, w io.Writer, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(c).Fprintf(w, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(color.FgGreen, ui.out, "✓", format, args...)
}

// Error prints an error message to the error writer.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.line(color.FgRed, ui.errOut, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.line(color.FgYellow, ui.out, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.line(color.FgCyan, ui.out, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.line(color.FgBlue, ui.out, "→", format, args...)
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Text prints s verbatim.
func (ui *UI) Text(s string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out, s)
}

// JSON writes v as indented JSON. It is the only output in JSON mode.
func (ui *UI) JSON(v interface{}) error {
	return writeJSON(ui.out, v)
}

// Table prints a boxed table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	border := color.New(color.FgCyan, color.Bold)
	rule := func(left, mid, right string) {
		border.Fprint(ui.out, left)
		for i, w := range widths {
			fmt.Fprint(ui.out, strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				border.Fprint(ui.out, mid)
			}
		}
		border.Fprintln(ui.out, right)
	}
	row := func(cells []string) {
		border.Fprint(ui.out, "│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(ui.out, " %s%s ", cell, strings.Repeat(" ", w-len([]rune(cell))))
			border.Fprint(ui.out, "│")
		}
		fmt.Fprintln(ui.out)
	}

	rule("┌", "┬", "┐")
	row(headers)
	rule("├", "┼", "┤")
	for _, r := range rows {
		row(r)
	}
	rule("└", "┴", "┘")
}

// ProgressBar adds a counted bar to the shared multi-bar display. It
// returns nil when bars are disabled.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	if !ui.interactive {
		return nil
	}
	if ui.progress == nil {
		ui.progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(ui.errOut))
	}
	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
}

// Spinner shows an indeterminate spinner until the returned stop func is
// called. It is a no-op when output is not interactive.
func (ui *UI) Spinner(message string) (stop func()) {
	if !ui.interactive {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(ui.errOut))
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}

// Counter returns a single progress bar for a known number of items, used
// for sequential work such as training seeds.
func (ui *UI) Counter(total int, description string) *progressbar.ProgressBar {
	if !ui.interactive {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(ui.errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pairs"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// importBars tracks one bar per DataProcess3 category. Import progress
// arrives concurrently from the category workers.
type importBars struct {
	ui   *UI
	mu   sync.Mutex
	bars map[string]*mpb.Bar
	// files counts processed files per category.
	files map[string]int
}

func newImportBars(ui *UI) *importBars {
	return &importBars{ui: ui, bars: make(map[string]*mpb.Bar), files: make(map[string]int)}
}

// Observe is an ingest.ProgressFunc.
func (b *importBars) Observe(ev ingest.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	done := ev.FileIndex + 1
	b.files[ev.Category] = done
	bar, ok := b.bars[ev.Category]
	if !ok {
		bar = b.ui.ProgressBar(ev.Category, int64(ev.FileCount))
		b.bars[ev.Category] = bar
	}
	if bar != nil {
		bar.SetCurrent(int64(done))
	}
}

// Finish aborts bars of categories that stopped early so the display can
// be closed.
func (b *importBars) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bar := range b.bars {
		if bar != nil && !bar.Completed() {
			bar.Abort(false)
		}
	}
}

// Files returns the number of files processed for category.
func (b *importBars) Files(category string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files[category]
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Newline prints a newline.
func (ui *UI) Newline() {
	if !ui.jsonMode {
		fmt.Fprintln(ui.out)
	}
}
