// Package report prints benchmark runs for humans or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"globesort/internal/bench"
	"globesort/internal/metrics"
)

const timestampLayout = "2006-01-02 15:04:05"

// Adaptive colors that work on light and dark terminals.
var (
	colorPurple = lipgloss.AdaptiveColor{Light: "#7B2FBE", Dark: "#B97EFF"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	colorAmber  = lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FFA500"}
	colorDimFg  = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
)

// Printer writes reports to w. Styles are resolved against w, so output to
// a pipe or file carries no escape codes.
type Printer struct {
	w io.Writer

	title lipgloss.Style
	key   lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(colorPurple),
		key:   r.NewStyle().Width(28),
		ok:    r.NewStyle().Foreground(colorGreen),
		warn:  r.NewStyle().Bold(true).Foreground(colorAmber),
		dim:   r.NewStyle().Foreground(colorDimFg),
	}
}

// Run prints a single run.
func (p *Printer) Run(run *bench.Run) {
	rep := run.Report

	fmt.Fprintln(p.w, p.title.Render("GlobeSort benchmark"))
	fmt.Fprintln(p.w, p.dim.Render(run.StartedAt.Format(timestampLayout)+"  "+run.Target+"  run "+run.ID.String()))
	fmt.Fprintln(p.w)

	p.kv("Ping RTT", FormatMs(rep.PingRTTMs))
	p.kv("RPC RTT", FormatMs(rep.RPCRTTMs))
	p.kv("Server sort", fmt.Sprintf("%d ms", rep.ServerSortMs))
	p.kv("Latency (one-way)", FormatMs(rep.OneWayLatencyMs))
	p.kv("Application throughput", FormatThroughput(rep))
	p.kv("One-way network", FormatMs(rep.OneWayNetworkMs))
	p.kv("Values", humanize.Comma(int64(rep.Values)))
	if run.Verified {
		p.kv("Sorted", p.ok.Render("verified"))
	}

	for _, a := range run.Anomalies {
		fmt.Fprintln(p.w, p.warn.Render("⚠ "+a))
	}
}

// Summary prints aggregate statistics over many runs.
func (p *Printer) Summary(s metrics.Summary, duration string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.title.Render(fmt.Sprintf("Summary (%d runs, %s)", s.Runs, duration)))
	fmt.Fprintln(p.w, strings.Repeat("─", 75))

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tAVG\tMIN\tP50\tP95\tP99\tMAX")
	row := func(name string, st metrics.Stats) {
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			name, st.Avg, st.Min, st.P50, st.P95, st.P99, st.Max)
	}
	row("ping rtt (ms)", s.PingRTT)
	row("rpc rtt (ms)", s.RPCRTT)
	row("server sort (ms)", s.ServerSort)
	row("one-way network (ms)", s.OneWayNetwork)
	w.Flush()

	fmt.Fprintln(p.w)
	if s.ThroughputRuns > 0 {
		p.kv("Mean throughput", formatRate(s.MeanThroughput)+" values/s")
	} else {
		p.kv("Mean throughput", "undefined")
	}
	if s.AnomalousRuns > 0 {
		fmt.Fprintln(p.w, p.warn.Render(fmt.Sprintf("⚠ %d of %d runs had measurement anomalies", s.AnomalousRuns, s.Runs)))
	}
}

// Progress prints a one-line status for a completed run.
// A total of zero means the number of runs is open-ended.
func (p *Printer) Progress(run *bench.Run, current, total int) {
	counter := fmt.Sprintf("[%d/%d]", current, total)
	if total <= 0 {
		counter = fmt.Sprintf("[%d]", current)
	}
	fmt.Fprintf(p.w, "  %s %-24s rtt %s  sort %d ms\n",
		counter, run.Target, FormatMs(run.Report.RPCRTTMs), run.Report.ServerSortMs)
	for _, a := range run.Anomalies {
		fmt.Fprintln(p.w, p.warn.Render("    ⚠ "+a))
	}
}

func (p *Printer) kv(key, value string) {
	fmt.Fprintf(p.w, "  %s%s\n", p.key.Render(key+":"), value)
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatMs formats a millisecond value.
func FormatMs(ms float64) string {
	return fmt.Sprintf("%.3f ms", ms)
}

// FormatThroughput formats the application throughput of rep, which may be
// undefined for a zero round trip.
func FormatThroughput(rep metrics.Report) string {
	if !rep.ThroughputDefined {
		return "undefined (zero rtt)"
	}
	return formatRate(rep.ApplicationThroughput) + " values/s"
}

func formatRate(v float64) string {
	return humanize.Commaf(math.Round(v*10) / 10)
}
