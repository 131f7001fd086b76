package conversation

// Entry is the reply keyboard label that opens the settings menu.
const Entry = "Printer Settings ⚙"

// Menu headers.
const (
	headerSettings = "Printer Settings"
	headerLeds     = "LEDs Settings 💡"
	headerPrintJob = "Print Job Settings 🔲"
)

// Button labels. A button's label is also its callback token.
const (
	btnLeds     = "LEDs 💡"
	btnPrintJob = "Print Job 🔲"
	btnBack     = "Back To Settings 🔙"

	btnLedLevel  = "Check LEDs Brightness"
	btnLedHigh   = "LEDs High"
	btnLedMedium = "LEDs Medium"
	btnLedLow    = "LEDs Low"

	btnJobState     = "Check Print Job State"
	btnJobThumbnail = "Get Print Job Thumbnail"
	btnPrintModel   = "Print Model"
	btnResume       = "Resume Printing ▶"
	btnPause        = "Pause Printing ⏸"

	btnYes = "Yes"
	btnNo  = "No"
)

// LED brightness levels, in percent.
const (
	ledHigh   = 100
	ledMedium = 50
	ledLow    = 0
)

var (
	settingsKeyboard = [][]string{
		{btnLeds},
		{btnPrintJob},
	}

	ledsKeyboard = [][]string{
		{btnLedLevel},
		{btnLedHigh, btnLedMedium, btnLedLow},
		{btnBack},
	}

	printJobKeyboard = [][]string{
		{btnJobState},
		{btnJobThumbnail},
		{btnPrintModel},
		{btnResume, btnPause},
		{btnBack},
	}

	confirmKeyboard = [][]string{
		{btnYes, btnNo},
		{btnBack},
	}

	backKeyboard = [][]string{
		{btnBack},
	}
)

// Status lines appended below a header.
const (
	msgLedsHigh       = "Setting LEDs to High"
	msgLedsMedium     = "Setting LEDs to Medium"
	msgLedsLow        = "Setting LEDs to Low"
	msgLedsFailed     = "Could not set LEDs..."
	msgLedsReadFailed = "Could not get LEDs brightness..."

	msgJobStateFailed = "Could not get print job state"
	msgNoJob          = "No Print Job"

	msgAlreadyPaused  = "Print Job has already been stopped!"
	msgConfirmPause   = "Are you sure you want to pause Print Job?"
	msgMustBePrinting = "Print Job state must be printing to be paused"
	msgPauseCanceled  = "Canceled Print Job pause command 🚫"
	msgPausing        = "Pausing print"
	msgPauseFailed    = "Could not pause print"
	msgNoLongerPrint  = "Print Job is no longer printing, not pausing"

	msgAlreadyPrinting = "Print Job is already printing!"
	msgConfirmResume   = "Are you sure you want to continue Print Job?"
	msgMustBePaused    = "Print Job state must be paused to resume printing"
	msgResumeCanceled  = "Canceled Print Job resume printing command 🚫"
	msgResuming        = "Resuming print"
	msgResumeFailed    = "Could not resume print"
	msgNoLongerPaused  = "Print Job is no longer paused, not resuming"

	msgSendModel    = "Please send model file to be printed"
	msgFileSent     = "File has been sent"
	msgFileFailed   = "Could not send file to printer"
	msgFileTooLarge = "File is too large to be printed"
)

// Standalone replies.
const (
	msgNoThumbnail   = "Could not get print job thumbnail"
	msgNoJobOrFile   = "No printer job running or no file found!"
	thumbnailName    = "thumbnail.png"
	stateLinePrefix  = "\n  <b>State</b>: "
	statusLinePrefix = "\n  "
)

// line appends a status line to a menu header.
func line(header, msg string) string {
	return header + statusLinePrefix + msg
}
