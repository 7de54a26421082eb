// Package report prints measurement results to the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/wesleyorama2/latprof/internal/latency"
)

// Format selects how result lines are rendered.
type Format string

const (
	// FormatText prints fixed-width columns.
	FormatText Format = "text"

	// FormatJSON prints one JSON object per line.
	FormatJSON Format = "json"
)

// ColumnHeader describes the columns of an interval line.
const ColumnHeader = "req_size median_us 5th_us 99th_us max_us [new samples -- bandwidth -- total_time]"

// Interval contains the results of one reporting interval.
type Interval struct {
	ReqSize    int              `json:"reqSize"`
	Latency    latency.Snapshot `json:"latency"`
	NewSamples uint64           `json:"newSamples"`
	Rejected   uint64           `json:"rejected"`
	Elapsed    time.Duration    `json:"-"`
}

// BandwidthGbps returns size × samples × 8 / 1e9 for the interval.
func (i Interval) BandwidthGbps() float64 {
	return float64(i.ReqSize) * float64(i.NewSamples) * 8 / 1e9
}

// Console writes result lines for both roles.
type Console struct {
	writer    io.Writer
	format    Format
	isTTY     bool
	useColors bool
	scheme    *ColorScheme

	// local mode runs several roles against one writer
	mu sync.Mutex
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Format      Format
	ForceColors bool
	NoColor     bool
}

// NewConsole creates a console writer.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.Format == "" {
		config.Format = FormatText
	}

	isTTY := isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	scheme := DefaultColorScheme()
	if !useColors {
		scheme = NoColorScheme()
	}

	return &Console{
		writer:    config.Writer,
		format:    config.Format,
		isTTY:     isTTY,
		useColors: useColors,
		scheme:    scheme,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return checkIsTerminal(f)
	}
	return false
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// Printf prints a free-form status line. JSON output suppresses it so the
// stream stays machine readable.
func (c *Console) Printf(format string, args ...any) {
	if c.format == FormatJSON {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, format+"\n", args...)
}

// Header prints the column header that precedes interval lines.
func (c *Console) Header() {
	if c.format == FormatJSON {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.writer, c.scheme.Header.Sprint(ColumnHeader))
}

// Interval prints the line for an interval with new samples.
func (c *Console) Interval(iv Interval) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == FormatJSON {
		c.writeJSON(struct {
			Type string `json:"type"`
			Interval
			BandwidthGbps  float64 `json:"bandwidthGbps"`
			ElapsedSeconds int64   `json:"elapsedSeconds"`
		}{"interval", iv, iv.BandwidthGbps(), int64(iv.Elapsed / time.Second)})
		return
	}

	fmt.Fprintf(c.writer,
		"%10d %10.1f %10.1f %10.1f %10.1f [%10d newSample -- BW %10f Gbps -- %d seconds]\n",
		iv.ReqSize,
		iv.Latency.P50,
		iv.Latency.P5,
		iv.Latency.P99,
		iv.Latency.Max,
		iv.NewSamples,
		iv.BandwidthGbps(),
		int64(iv.Elapsed/time.Second))
}

// NoResponses prints the stall line for an interval without new samples.
func (c *Console) NoResponses(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == FormatJSON {
		c.writeJSON(struct {
			Type            string  `json:"type"`
			IntervalSeconds float64 `json:"intervalSeconds"`
		}{"stall", interval.Seconds()})
		return
	}

	fmt.Fprintln(c.writer, c.scheme.Warning.Sprintf("No new responses in %.2f seconds", interval.Seconds()))
}

// ProcessingRatio prints the server's final utilization.
func (c *Console) ProcessingRatio(totalUs, processingUs, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == FormatJSON {
		c.writeJSON(struct {
			Type         string  `json:"type"`
			TotalUs      float64 `json:"totalUs"`
			ProcessingUs float64 `json:"processingUs"`
			Percent      float64 `json:"percent"`
		}{"utilization", totalUs, processingUs, percent})
		return
	}

	fmt.Fprintf(c.writer, "Total Time is %f us, Processing Total Time is %f us, %s\n",
		totalUs, processingUs, c.scheme.Success.Sprintf("%f%%", percent))
}

func (c *Console) writeJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(c.writer, "{\"type\":\"error\",\"error\":%q}\n", err.Error())
		return
	}
	c.writer.Write(append(b, '\n'))
}
