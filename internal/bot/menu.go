package bot

import (
	"strings"

	"github.com/nerrad567/printwatch/internal/conversation"
)

// Reply keyboard labels.
const (
	btnImage    = "Get Image 🖼"
	btnTest     = "Bot Status 🤖"
	btnPrinter  = "Printer Status 🖨"
	btnPrintJob = "Print Job 🔲"
	btnMyID     = "Get My Id"
	btnSettings = conversation.Entry
)

// Slash commands.
const (
	cmdStart    = "start"
	cmdMyID     = "myid"
	cmdTest     = "test"
	cmdImage    = "image"
	cmdPrintJob = "printjob"
	cmdPrinter  = "printer"
)

var (
	unauthorizedKeyboard = [][]string{
		{btnMyID},
	}

	monitorKeyboard = [][]string{
		{btnPrintJob, btnPrinter},
		{btnImage},
		{btnTest},
	}

	controlKeyboard = [][]string{
		{btnPrintJob, btnPrinter},
		{btnImage},
		{btnSettings},
		{btnTest},
	}
)

var (
	unauthorizedHelp = strings.Join([]string{
		"Commands:",
		"/start - To get started",
		"/myid - To get your user id",
	}, "\n")

	monitorHelp = strings.Join([]string{
		"Commands:",
		"/start - To get started",
		"/test - To test if the bot is alive",
		"/image - To get image from printer",
		"/printjob - To get current print job",
		"/printer - To get printer status",
		"/myid - To get your user id",
	}, "\n")
)

const (
	msgAlive         = "Bot is alive 👍"
	msgOK            = "OK! 😀"
	msgRetrieving    = "Retrieving image..."
	msgNoImage       = "Could not get image :("
	msgNoStatus      = "Could not get status :("
	msgNoJobReport   = "Could not get print job :("
	msgUserIDFormat  = "Your user id is %d"
	msgSendingFormat = "Sending image: %s"
	imageNameLayout  = "2006-01-02_15:04:05"
	praiseText       = "well done"
)
