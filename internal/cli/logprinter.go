package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"
)

// eventPrinter prints websocket events as they arrive, one colored line per event with
// a timestamp relative to the first event.
type eventPrinter struct {
	mu         sync.Mutex
	w          io.Writer
	start      time.Time
	now        func() time.Time
	count      int
	colors     map[string]*color.Color
	colorIndex int
}

var eventLabel = color.New(color.FgHiMagenta, color.Bold)

// Predefined palette of distinct colors for event names
var colorPalette = []*color.Color{
	color.New(color.FgGreen),
	color.New(color.FgCyan),
	color.New(color.FgMagenta),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
}

var failureColor = color.New(color.FgHiRed)

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{w: w, now: time.Now, colors: map[string]*color.Color{}}
}

// Print writes one event. With --json every event is a single NDJSON line.
func (p *eventPrinter) Print(event string, args []json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	if p.count == 0 {
		p.start = t
		if !jsonOutput {
			eventLabel.Fprintf(p.w, "\nListening since %s\n\n", t.Local().Format("2006-01-02 15:04:05.000 MST"))
		}
	}
	p.count++

	if jsonOutput {
		line := map[string]any{"event": event, "time": t.UnixMilli(), "args": args}
		b, err := json.Marshal(line)
		if err != nil {
			return
		}
		fmt.Fprintln(p.w, string(b))
		return
	}

	c := p.colors[event]
	if c == nil {
		c = colorPalette[p.colorIndex%len(colorPalette)]
		p.colors[event] = c
		p.colorIndex++
	}

	relative := t.Sub(p.start)
	timestamp := fmt.Sprintf("[%02d:%02d.%03d]",
		int(relative.Minutes()),
		int(relative.Seconds())%60,
		relative.Milliseconds()%1000,
	)

	fmt.Fprint(p.w, "  "+timestamp+" ")
	c.Fprintf(p.w, "%s", event)

	msg := indentMultiline(summarize(args), "                ")
	if isFailure(event, args) {
		fmt.Fprint(p.w, " ")
		failureColor.Fprint(p.w, "❗ ")
		failureColor.Fprintln(p.w, msg)
		return
	}
	fmt.Fprint(p.w, " ▶ ")
	fmt.Fprintln(p.w, msg)
}

// summarize renders event arguments compactly, strings unquoted.
func summarize(args []json.RawMessage) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		r := gjson.ParseBytes(a)
		if r.Type == gjson.String {
			parts = append(parts, r.String())
			continue
		}
		parts = append(parts, strings.TrimSpace(string(a)))
	}
	return strings.Join(parts, " ")
}

// isFailure reports events that signal a failed job.
func isFailure(event string, args []json.RawMessage) bool {
	if strings.Contains(event, "fail") || strings.Contains(event, "error") {
		return true
	}
	for _, a := range args {
		if s := gjson.GetBytes(a, "state").String(); s == "failed" || s == "error" {
			return true
		}
	}
	return false
}

// indentMultiline adds indentation to all lines except the first in a multiline string
func indentMultiline(text, indent string) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= 1 {
		return text
	}
	for i := 1; i < len(lines); i++ {
		lines[i] = indent + lines[i]
	}
	return strings.Join(lines, "\n")
}
