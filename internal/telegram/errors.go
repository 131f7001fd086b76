package telegram

import "errors"

var (
	// ErrNoToken is returned by New when the bot token is empty.
	ErrNoToken = errors.New("telegram: bot token is required")

	// ErrDownloadFailed is returned when a file cannot be fetched.
	ErrDownloadFailed = errors.New("telegram: file download failed")
)
