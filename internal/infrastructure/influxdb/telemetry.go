package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/printwatch/internal/printer"
)

// PointWriter queues points. *Client implements it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// InfoSource reads printer temperatures. *printer.Client implements it.
type InfoSource interface {
	PrinterInfo(ctx context.Context) (printer.PrinterInfo, error)
}

// Telemetry is a watcher observer that writes one state point per poll
// and, when an InfoSource is set, the bed and hotend temperatures.
type Telemetry struct {
	writer PointWriter
	info   InfoSource
	now    func() time.Time
}

// NewTelemetry creates a telemetry observer. info may be nil to record
// state only.
func NewTelemetry(writer PointWriter, info InfoSource) *Telemetry {
	return &Telemetry{writer: writer, info: info, now: time.Now}
}

// OnPoll records st and the current temperatures.
func (t *Telemetry) OnPoll(ctx context.Context, st printer.State) error {
	ts := t.now()
	t.writeState(st, false, ts)

	if t.info == nil {
		return nil
	}
	info, err := t.info.PrinterInfo(ctx)
	if err != nil {
		return fmt.Errorf("influxdb: reading temperatures: %w", err)
	}
	t.writeTemperatures(info, ts)
	return nil
}

// OnChange marks the transition with a changed=true state point.
func (t *Telemetry) OnChange(_ context.Context, _, st printer.State) error {
	t.writeState(st, true, t.now())
	return nil
}

func (t *Telemetry) writeState(st printer.State, changed bool, ts time.Time) {
	tags := map[string]string{
		"printer_status": st.PrinterStatus,
		"printjob_state": st.PrintJobState,
	}
	fields := map[string]any{
		"printing": st.PrintJobState == printer.JobPrinting,
		"paused":   st.PrintJobState == printer.JobPaused,
		"changed":  changed,
	}
	t.writer.WritePoint(MeasurementState, tags, fields, ts)
}

func (t *Telemetry) writeTemperatures(info printer.PrinterInfo, ts time.Time) {
	t.writeTemperature("bed", info.Bed.Temperature, ts)

	n := 0
	for _, head := range info.Heads {
		for _, ext := range head.Extruders {
			t.writeTemperature("hotend_"+strconv.Itoa(n), ext.Hotend.Temperature, ts)
			n++
		}
	}
}

func (t *Telemetry) writeTemperature(sensor string, temp printer.Temperature, ts time.Time) {
	t.writer.WritePoint(MeasurementTemperature,
		map[string]string{"sensor": sensor},
		map[string]any{"current": temp.Current, "target": temp.Target},
		ts)
}
