package conversation

import (
	"context"
	"errors"
	"strconv"

	"github.com/nerrad567/printwatch/internal/audit"
	"github.com/nerrad567/printwatch/internal/chat"
	"github.com/nerrad567/printwatch/internal/printer"
	"github.com/nerrad567/printwatch/internal/textfmt"
)

// newTable builds the state × input transition table.
func newTable() map[State]map[string]transition {
	t := map[State]map[string]transition{
		Settings: {
			btnLeds:     showLeds,
			btnPrintJob: showPrintJob,
		},
		Leds: {
			btnLedLevel:  checkLeds,
			btnLedHigh:   setLeds(ledHigh, msgLedsHigh),
			btnLedMedium: setLeds(ledMedium, msgLedsMedium),
			btnLedLow:    setLeds(ledLow, msgLedsLow),
		},
		PrintJob: {
			btnJobState:     checkJobState,
			btnJobThumbnail: sendThumbnail,
			btnPrintModel:   requestModel,
			btnPause:        requestPause,
			btnResume:       requestResume,
		},
		PausingConfirm: {
			btnYes: confirmPause,
			btnNo:  cancelPause,
		},
		ResumingConfirm: {
			btnYes: confirmResume,
			btnNo:  cancelResume,
		},
		AwaitingModelFile: {
			inputDocument: uploadModel,
		},
	}
	for _, inputs := range t {
		inputs[btnBack] = showSettings
	}
	return t
}

func showSettings(e *Engine, ctx context.Context, t turn) State {
	e.edit(ctx, t.ev, headerSettings, settingsKeyboard, false)
	return Settings
}

func showLeds(e *Engine, ctx context.Context, t turn) State {
	e.edit(ctx, t.ev, headerLeds, ledsKeyboard, false)
	return Leds
}

func showPrintJob(e *Engine, ctx context.Context, t turn) State {
	e.edit(ctx, t.ev, headerPrintJob, printJobKeyboard, false)
	return PrintJob
}

func checkLeds(e *Engine, ctx context.Context, t turn) State {
	level, err := e.device.LEDBrightness(ctx)
	if err != nil {
		e.logger.Warn("reading LED brightness failed", "error", err)
		e.edit(ctx, t.ev, line(headerLeds, msgLedsReadFailed), ledsKeyboard, false)
		return Leds
	}
	e.edit(ctx, t.ev, line(headerLeds, "LEDs are set to "+strconv.FormatFloat(level, 'f', -1, 64)), ledsKeyboard, false)
	return Leds
}

func setLeds(level float64, done string) transition {
	return func(e *Engine, ctx context.Context, t turn) State {
		err := e.device.SetLEDBrightness(ctx, level)
		e.record(ctx, t.ev, audit.ActionSetLEDs, err, map[string]any{"brightness": level})
		if err != nil {
			e.logger.Warn("setting LED brightness failed", "level", level, "error", err)
			e.edit(ctx, t.ev, line(headerLeds, msgLedsFailed), ledsKeyboard, false)
			return Leds
		}
		e.edit(ctx, t.ev, line(headerLeds, done), ledsKeyboard, false)
		return Leds
	}
}

func checkJobState(e *Engine, ctx context.Context, t turn) State {
	state, ok := e.jobState(ctx, t.ev)
	if ok {
		e.edit(ctx, t.ev, headerPrintJob+stateLinePrefix+textfmt.JobState(state), printJobKeyboard, true)
	}
	return PrintJob
}

func sendThumbnail(e *Engine, ctx context.Context, t turn) State {
	thumb, err := e.device.Thumbnail(ctx)
	switch {
	case errors.Is(err, printer.ErrDeviceRejected):
		e.send(ctx, t.ev.ChatID, msgNoJobOrFile)
	case err != nil:
		e.logger.Warn("fetching thumbnail failed", "error", err)
		e.send(ctx, t.ev.ChatID, msgNoThumbnail)
	case !thumb.Found:
		e.send(ctx, t.ev.ChatID, msgNoThumbnail)
	default:
		photo := chat.Photo{Name: thumbnailName, Data: thumb.PNG}
		if err := e.transport.SendPhoto(ctx, t.ev.ChatID, photo); err != nil {
			e.logger.Warn("sending thumbnail failed", "chat_id", t.ev.ChatID, "error", err)
		}
	}
	return PrintJob
}

func requestModel(e *Engine, ctx context.Context, t turn) State {
	e.edit(ctx, t.ev, line(headerPrintJob, msgSendModel), backKeyboard, false)
	return AwaitingModelFile
}

// jobState queries the print job state, rendering a failure line when the
// printer cannot be reached.
func (e *Engine) jobState(ctx context.Context, ev chat.Event) (string, bool) {
	state, err := e.device.PrintJobState(ctx)
	if err != nil {
		e.logger.Warn("reading print job state failed", "error", err)
		e.edit(ctx, ev, line(headerPrintJob, msgJobStateFailed), printJobKeyboard, false)
		return "", false
	}
	return state, true
}

// confirmFlow describes one side of the pause/resume confirmation.
type confirmFlow struct {
	action    string
	required  string // job state the device call needs
	opposite  string // job state meaning "already done"
	confirm   State
	already   string
	mustBe    string
	ask       string
	canceled  string
	doing     string
	failed    string
	stale     string
	deviceOp  func(Device, context.Context) error
	logAction string
}

var (
	pauseFlow = confirmFlow{
		action:    audit.ActionPause,
		required:  printer.JobPrinting,
		opposite:  printer.JobPaused,
		confirm:   PausingConfirm,
		already:   msgAlreadyPaused,
		mustBe:    msgMustBePrinting,
		ask:       msgConfirmPause,
		canceled:  msgPauseCanceled,
		doing:     msgPausing,
		failed:    msgPauseFailed,
		stale:     msgNoLongerPrint,
		deviceOp:  Device.Pause,
		logAction: "pause",
	}
	resumeFlow = confirmFlow{
		action:    audit.ActionResume,
		required:  printer.JobPaused,
		opposite:  printer.JobPrinting,
		confirm:   ResumingConfirm,
		already:   msgAlreadyPrinting,
		mustBe:    msgMustBePaused,
		ask:       msgConfirmResume,
		canceled:  msgResumeCanceled,
		doing:     msgResuming,
		failed:    msgResumeFailed,
		stale:     msgNoLongerPaused,
		deviceOp:  Device.Resume,
		logAction: "resume",
	}
)

func requestPause(e *Engine, ctx context.Context, t turn) State  { return e.request(ctx, t, pauseFlow) }
func requestResume(e *Engine, ctx context.Context, t turn) State { return e.request(ctx, t, resumeFlow) }
func confirmPause(e *Engine, ctx context.Context, t turn) State  { return e.confirm(ctx, t, pauseFlow) }
func confirmResume(e *Engine, ctx context.Context, t turn) State { return e.confirm(ctx, t, resumeFlow) }
func cancelPause(e *Engine, ctx context.Context, t turn) State   { return e.cancel(ctx, t, pauseFlow) }
func cancelResume(e *Engine, ctx context.Context, t turn) State  { return e.cancel(ctx, t, resumeFlow) }

// request asks for confirmation if the job is in the required state and
// otherwise explains why nothing will happen. No device call is made.
func (e *Engine) request(ctx context.Context, t turn, f confirmFlow) State {
	state, ok := e.jobState(ctx, t.ev)
	if !ok {
		return PrintJob
	}
	switch state {
	case f.required:
		e.edit(ctx, t.ev, line(headerPrintJob, f.ask), confirmKeyboard, false)
		return f.confirm
	case f.opposite:
		e.edit(ctx, t.ev, line(headerPrintJob, f.already), printJobKeyboard, false)
	case printer.JobNone:
		e.edit(ctx, t.ev, line(headerPrintJob, msgNoJob), printJobKeyboard, false)
	default:
		e.edit(ctx, t.ev, line(headerPrintJob, f.mustBe)+stateLinePrefix+textfmt.JobState(state), printJobKeyboard, true)
	}
	return PrintJob
}

// confirm re-reads the job state and only issues the device call if it is
// still the required one.
func (e *Engine) confirm(ctx context.Context, t turn, f confirmFlow) State {
	state, ok := e.jobState(ctx, t.ev)
	if !ok {
		return PrintJob
	}
	if state != f.required {
		e.record(ctx, t.ev, f.action, nil, map[string]any{"skipped_state": state})
		e.edit(ctx, t.ev, line(headerPrintJob, f.stale)+stateLinePrefix+textfmt.JobState(state), printJobKeyboard, true)
		return PrintJob
	}

	err := f.deviceOp(e.device, ctx)
	e.record(ctx, t.ev, f.action, err, nil)
	if err != nil {
		e.logger.Warn("print job command failed", "command", f.logAction, "error", err)
		e.edit(ctx, t.ev, line(headerPrintJob, f.failed), printJobKeyboard, false)
		return PrintJob
	}
	e.logger.Info("print job command sent", "command", f.logAction, "user_id", t.ev.UserID)
	e.edit(ctx, t.ev, line(headerPrintJob, f.doing), printJobKeyboard, false)
	return PrintJob
}

func (e *Engine) cancel(ctx context.Context, t turn, f confirmFlow) State {
	e.edit(ctx, t.ev, line(headerPrintJob, f.canceled), printJobKeyboard, false)
	return PrintJob
}

// record writes an audit entry for a device mutation. Details carrying
// skipped_state mark a confirmation that found the job had moved on.
func (e *Engine) record(ctx context.Context, ev chat.Event, action string, err error, details map[string]any) {
	outcome := audit.OutcomeSuccess
	switch {
	case err != nil:
		outcome = audit.OutcomeFailure
		if details == nil {
			details = map[string]any{}
		}
		details["error"] = err.Error()
	case details["skipped_state"] != nil:
		outcome = audit.OutcomeSkipped
	}
	e.auditor.Record(ctx, audit.Entry{
		Action:  action,
		UserID:  ev.UserID,
		ChatID:  ev.ChatID,
		Source:  audit.SourceChat,
		Outcome: outcome,
		Details: details,
	})
}
