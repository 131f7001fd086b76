package textfmt

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/nerrad567/printwatch/internal/printer"
)

const (
	barCells   = 5
	barEmpty   = "▫"
	barFull    = "⬛"
	timeLayout = "2006-01-02 15:04:05"
)

// barPartial holds the glyphs for a partially filled cell, least filled first.
var barPartial = []string{"▪", "◾"}

var printerLabels = map[string]string{
	printer.StatusIdle:        "Idle ⚪",
	printer.StatusPrinting:    "Printing ▶",
	printer.StatusError:       "Error ‼",
	printer.StatusMaintenance: "Maintenance 🛠",
	printer.StatusBooting:     "Booting 🖥",
}

var jobLabels = map[string]string{
	printer.JobPrinting:    "Printing ▶",
	printer.JobPrePrint:    "Pre Print ⚪",
	printer.JobPostPrint:   "Post Print 🔘",
	printer.JobPaused:      "Paused ‼",
	printer.JobWaitCleanup: "Wait Cleanup ✅",
	printer.JobResuming:    "Resuming ⏯",
	printer.JobPausing:     "Pausing ⏮",
	printer.JobNone:        "No Print Job ⚪",
	"none":                 "None",
}

// PrinterStatus returns the display label for a printer status. Unknown
// values are shown escaped as-is.
func PrinterStatus(s string) string {
	if l, ok := printerLabels[s]; ok {
		return l
	}
	return html.EscapeString(s)
}

// JobState returns the display label for a print job state.
func JobState(s string) string {
	if l, ok := jobLabels[s]; ok {
		return l
	}
	return html.EscapeString(s)
}

// ProgressBar draws progress (0..1) as five cells, the last filled cell
// rendered partially.
func ProgressBar(progress float64) string {
	if progress >= 1 {
		return strings.Repeat(barFull, barCells)
	}
	if progress < 0 {
		progress = 0
	}

	full := int(progress * barCells)
	rest := progress - float64(full)/barCells
	partial := int(barCells * float64(len(barPartial)) * rest)
	partial = min(partial, len(barPartial)-1)

	return strings.Repeat(barFull, full) + barPartial[partial] + strings.Repeat(barEmpty, barCells-1-full)
}

// Duration renders d as H:MM:SS, prefixed with whole days when longer than one.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	clock := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

// StateChanged is the notification sent to the roster when the printer or job
// state changes.
func StateChanged(st printer.State) string {
	var b strings.Builder
	b.WriteString("Status Changed❗\n")
	fmt.Fprintf(&b, "   <b>Printer Status:</b> %s\n", PrinterStatus(st.PrinterStatus))
	fmt.Fprintf(&b, "   <b>Print Job Status:</b> %s", JobState(st.PrintJobState))
	if st.PrintJobState == printer.JobPaused {
		fmt.Fprintf(&b, "\n   <b>Pause Source:</b> %s", html.EscapeString(st.PauseSource))
	}
	return b.String()
}

// NoPrintJob is shown when the device has no job.
const NoPrintJob = "<b>Status:</b> No printer job running"

// PrintJobReport renders a job report. Times are shown in loc; now is used to
// estimate the end time when the device does not report one.
func PrintJobReport(job printer.PrintJob, loc *time.Location, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Status:</b> %s\n", JobState(job.State))
	if job.State == printer.JobPaused {
		fmt.Fprintf(&b, "<b>Pause Source:</b> %s\n", html.EscapeString(job.PauseSource))
	}
	fmt.Fprintf(&b, "<b>Model name:</b> %s\n", html.EscapeString(job.Name))
	fmt.Fprintf(&b, "<b>Total time:</b> %s\n", Duration(job.Total()))
	fmt.Fprintf(&b, "<b>Time remaining:</b> %s\n", Duration(job.Remaining()))
	fmt.Fprintf(&b, "<b>Progress:</b> %.2f%% %s\n", job.Progress*100, ProgressBar(job.Progress))

	if started, ok := job.Started(); ok {
		fmt.Fprintf(&b, "<b>Start Time:</b> %s\n", started.In(loc).Format(timeLayout))
	}

	end, ok := job.Finished()
	if !ok {
		end = now.Add(job.Remaining())
	}
	fmt.Fprintf(&b, "<b>End Time:</b> %s", end.In(loc).Format(timeLayout))
	return b.String()
}

// PrinterReport renders temperatures and feeder speed.
func PrinterReport(info printer.PrinterInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Printer Status:</b> %s\n", PrinterStatus(info.Status))
	b.WriteString("<b>  Bed Temperature 🌡:</b>\n")
	fmt.Fprintf(&b, "<b>    Current:</b> %.2f C\n", info.Bed.Temperature.Current)
	fmt.Fprintf(&b, "<b>    Target:</b> %g C\n", info.Bed.Temperature.Target)

	if ext, ok := info.PrimaryExtruder(); ok {
		b.WriteString("<b>  Extruder [1]:</b>\n")
		b.WriteString("<b>    Temperature 🌡:</b>\n")
		fmt.Fprintf(&b, "<b>      Current:</b> %.2f C\n", ext.Hotend.Temperature.Current)
		fmt.Fprintf(&b, "<b>      Target:</b> %g C\n", ext.Hotend.Temperature.Target)
		b.WriteString("<b>    Feeder:</b>\n")
		fmt.Fprintf(&b, "<b>      Max Speed:</b> %g mm/s", ext.Feeder.MaxSpeed)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
