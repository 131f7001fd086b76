package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Printer statuses reported by printer/status.
const (
	StatusIdle        = "idle"
	StatusPrinting    = "printing"
	StatusError       = "error"
	StatusMaintenance = "maintenance"
	StatusBooting     = "booting"
)

// Print job states reported by print_job/state. JobNone is synthesised when
// no job exists.
const (
	JobPrinting       = "printing"
	JobPaused         = "paused"
	JobPausing        = "pausing"
	JobResuming       = "resuming"
	JobPrePrint       = "pre_print"
	JobPostPrint      = "post_print"
	JobWaitCleanup    = "wait_cleanup"
	JobWaitUserAction = "wait_user_action"
	JobNone           = "no_printjob"
)

// Print job state transition targets.
const (
	targetPause = "pause"
	targetPrint = "print"
)

// maxModelBytes bounds an uploaded model file read into memory.
const maxModelBytes = 256 << 20

// State is the combined printer/job snapshot taken by one poll.
type State struct {
	PrinterStatus string `json:"printer_status"`
	PrintJobState string `json:"printjob_state"`
	PauseSource   string `json:"pause_source,omitempty"`
}

// Differs reports whether the printer status or job state changed.
// A pause source change alone is not a transition.
func (s State) Differs(prev State) bool {
	return s.PrinterStatus != prev.PrinterStatus || s.PrintJobState != prev.PrintJobState
}

// Temperature is a current/target pair in degrees Celsius.
type Temperature struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// PrinterInfo is the subset of GET printer used for status reports.
type PrinterInfo struct {
	Status string `json:"status"`
	Bed    struct {
		Temperature Temperature `json:"temperature"`
	} `json:"bed"`
	Heads []Head `json:"heads"`
}

// Head is one print head.
type Head struct {
	Extruders []Extruder `json:"extruders"`
}

// Extruder is one extruder on a head.
type Extruder struct {
	Hotend struct {
		Temperature Temperature `json:"temperature"`
	} `json:"hotend"`
	Feeder struct {
		MaxSpeed float64 `json:"max_speed"`
	} `json:"feeder"`
}

// PrimaryExtruder returns the first extruder of the first head.
func (p PrinterInfo) PrimaryExtruder() (Extruder, bool) {
	if len(p.Heads) == 0 || len(p.Heads[0].Extruders) == 0 {
		return Extruder{}, false
	}
	return p.Heads[0].Extruders[0], true
}

// PrintJob is the subset of GET print_job used for job reports.
type PrintJob struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	TimeTotal        float64 `json:"time_total"`
	TimeElapsed      float64 `json:"time_elapsed"`
	Progress         float64 `json:"progress"`
	DateTimeStarted  string  `json:"datetime_started"`
	DateTimeFinished string  `json:"datetime_finished"`
	PauseSource      string  `json:"pause_source"`
}

// Total returns the estimated total print time.
func (j PrintJob) Total() time.Duration {
	return seconds(j.TimeTotal)
}

// Remaining returns the estimated time left, never negative.
func (j PrintJob) Remaining() time.Duration {
	left := j.TimeTotal - j.TimeElapsed
	if left < 0 {
		left = 0
	}
	return seconds(left)
}

// Started returns the job start time, if reported.
func (j PrintJob) Started() (time.Time, bool) {
	return parseDeviceTime(j.DateTimeStarted)
}

// Finished returns the (estimated) job end time, if reported.
func (j PrintJob) Finished() (time.Time, bool) {
	return parseDeviceTime(j.DateTimeFinished)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}

// deviceTimeLayout is the zone-less form the firmware uses; it is UTC.
const deviceTimeLayout = "2006-01-02T15:04:05"

func parseDeviceTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(deviceTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// State takes the combined snapshot: printer status, then the job state when
// printing, then the pause source when paused. Job state is JobNone whenever
// the printer is not printing or the device has no job.
func (c *Client) State(ctx context.Context) (State, error) {
	status, err := c.PrinterStatus(ctx)
	if err != nil {
		return State{}, err
	}

	st := State{PrinterStatus: status, PrintJobState: JobNone}
	if status != StatusPrinting {
		return st, nil
	}

	if st.PrintJobState, err = c.PrintJobState(ctx); err != nil {
		return State{}, err
	}
	if st.PrintJobState == JobPaused {
		if st.PauseSource, err = c.PauseSource(ctx); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// PrinterStatus returns GET printer/status.
func (c *Client) PrinterStatus(ctx context.Context) (string, error) {
	var status string
	if err := c.getJSON(ctx, "printer status", "printer/status", &status); err != nil {
		return "", err
	}
	return status, nil
}

// PrinterInfo returns GET printer.
func (c *Client) PrinterInfo(ctx context.Context) (PrinterInfo, error) {
	var info PrinterInfo
	if err := c.getJSON(ctx, "printer", "printer", &info); err != nil {
		return PrinterInfo{}, err
	}
	return info, nil
}

// PrintJob returns GET print_job. The device rejects the request with 404
// when no job exists.
func (c *Client) PrintJob(ctx context.Context) (PrintJob, error) {
	var job PrintJob
	if err := c.getJSON(ctx, "print job", "print_job", &job); err != nil {
		return PrintJob{}, err
	}
	return job, nil
}

// PrintJobState returns GET print_job/state, or JobNone when the device
// rejects the request.
func (c *Client) PrintJobState(ctx context.Context) (string, error) {
	var state string
	err := c.getJSON(ctx, "print job state", "print_job/state", &state)
	if errors.Is(err, ErrDeviceRejected) {
		return JobNone, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

// PauseSource returns GET print_job/pause_source, or "" when rejected.
func (c *Client) PauseSource(ctx context.Context) (string, error) {
	var src string
	err := c.getJSON(ctx, "pause source", "print_job/pause_source", &src)
	if errors.Is(err, ErrDeviceRejected) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return src, nil
}

// Pause asks the device to pause the current job.
func (c *Client) Pause(ctx context.Context) error {
	return c.putJSON(ctx, "pause", "print_job/state", map[string]string{"target": targetPause})
}

// Resume asks the device to continue a paused job.
func (c *Client) Resume(ctx context.Context) error {
	return c.putJSON(ctx, "resume", "print_job/state", map[string]string{"target": targetPrint})
}

// LEDBrightness returns the case LED brightness (0-100).
func (c *Client) LEDBrightness(ctx context.Context) (float64, error) {
	var level float64
	if err := c.getJSON(ctx, "led brightness", "printer/led/brightness", &level); err != nil {
		return 0, err
	}
	return level, nil
}

// SetLEDBrightness sets the case LED brightness (0-100).
func (c *Client) SetLEDBrightness(ctx context.Context, level float64) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("printer: set led brightness: level %v out of range 0-100", level)
	}
	return c.putJSON(ctx, "set led brightness", "printer/led/brightness", level)
}

// VerifyAuth checks that the credential pair is accepted.
func (c *Client) VerifyAuth(ctx context.Context) error {
	_, err := c.call(ctx, "verify auth", http.MethodGet, "auth/verify", nil, "", maxJSONBody)
	return err
}

// SubmitPrintJob uploads the model file at path as a new print job named name.
//
// The multipart body is built once in memory so the digest handshake can
// replay it.
func (c *Client) SubmitPrintJob(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("printer: submit print job: %w", err)
	}
	defer f.Close()

	if name == "" {
		name = filepath.Base(path)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("printer: submit print job: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(f, maxModelBytes+1))
	if err != nil {
		return fmt.Errorf("printer: submit print job: reading model: %w", err)
	}
	if n > maxModelBytes {
		return fmt.Errorf("printer: submit print job: model exceeds %d bytes", maxModelBytes)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("printer: submit print job: %w", err)
	}

	_, err = c.call(ctx, "submit print job", http.MethodPost, "print_job", buf.Bytes(), mw.FormDataContentType(), maxJSONBody)
	return err
}

// Container returns the current job's container archive.
func (c *Client) Container(ctx context.Context) ([]byte, error) {
	return c.call(ctx, "print job container", http.MethodGet, "print_job/container", nil, "", maxBinaryBody)
}
