package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
)

func TestTable(t *testing.T) {
	var out bytes.Buffer
	ui := NewUI(&out, &out, false, true)

	ui.Table([]string{"Source", "Records"}, [][]string{
		{"market_trends", "12"},
		{"permits", "3"},
	})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "┌───────────────┬─────────┐", lines[0])
	assert.Equal(t, "│ Source        │ Records │", lines[1])
	assert.Equal(t, "│ market_trends │ 12      │", lines[3])
	assert.Equal(t, "└───────────────┴─────────┘", lines[5])
}

func TestJSONModeIsQuiet(t *testing.T) {
	var out bytes.Buffer
	ui := NewUI(&out, &out, true, true)

	ui.Success("done")
	ui.Warning("careful")
	ui.Table([]string{"a"}, [][]string{{"b"}})
	assert.Empty(t, out.String())

	require.NoError(t, ui.JSON(map[string]int{"stored": 2}))
	assert.JSONEq(t, `{"stored":2}`, out.String())
}

func TestImportBarsCountFiles(t *testing.T) {
	ui := NewUI(&bytes.Buffer{}, &bytes.Buffer{}, false, true)
	bars := newImportBars(ui)

	bars.Observe(ingest.ProgressEvent{Category: "Demographics", FileIndex: 0, FileCount: 3})
	bars.Observe(ingest.ProgressEvent{Category: "Demographics", FileIndex: 1, FileCount: 3})
	bars.Observe(ingest.ProgressEvent{Category: "Permits", FileIndex: 0, FileCount: 1})
	bars.Finish()
	ui.Close()

	assert.Equal(t, 2, bars.Files("Demographics"))
	assert.Equal(t, 1, bars.Files("Permits"))
	assert.Zero(t, bars.Files("Unknown"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3 * time.Hour, "3.0h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}

func TestCountRows(t *testing.T) {
	rows := countRows(map[string]int{"training": 4, "conversation": 2})
	assert.Equal(t, [][]string{
		{"conversation", "2"},
		{"training", "4"},
		{"total", "6"},
	}, rows)

	assert.Equal(t, [][]string{{"fact", "1"}}, countRows(map[string]int{"fact": 1}))
	assert.Empty(t, countRows(nil))
}
