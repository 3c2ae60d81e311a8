package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Console prints segments for a terminal: text as it streams, structured
// payloads as indented JSON, framing segments dimmed.
type Console struct {
	w       io.Writer
	verbose bool
	frame   *color.Color
	tool    *color.Color
}

func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{
		w:       w,
		verbose: verbose,
		frame:   color.New(color.Faint),
		tool:    color.New(color.FgCyan),
	}
}

func (c *Console) marker(format string, args ...any) error {
	if !c.verbose {
		return nil
	}
	_, err := c.frame.Fprintf(c.w, "["+format+"]\n", args...)
	return err
}

func (c *Console) Start(messageID string) error { return c.marker("start %s", messageID) }
func (c *Console) TextStart(id string) error    { return c.marker("text-start %s", id) }

func (c *Console) TextDelta(_ string, delta string) error {
	_, err := io.WriteString(c.w, delta)
	return err
}

func (c *Console) TextEnd(id string) error {
	if _, err := fmt.Fprintln(c.w); err != nil {
		return err
	}
	return c.marker("text-end %s", id)
}

func (c *Console) ToolResult(tool string, result any) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", tool, err)
	}
	_, err = c.tool.Fprintf(c.w, "\n%s:\n%s\n", tool, b)
	return err
}

func (c *Console) Finish() error { return c.marker("finish") }
