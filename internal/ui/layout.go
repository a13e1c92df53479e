package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the header drops totals.
	LayoutCompactWidth = 100
)

// Log display limits.
const (
	// DeviceLogLimit is the maximum number of SD card rows kept for display.
	DeviceLogLimit = 2000

	// ClientLogLines is how many lines of our own log file are tailed.
	ClientLogLines = 500
)

// Timing constants.
const (
	// RequestTimeout bounds switch, save and refresh requests.
	RequestTimeout = 5 * time.Second

	// DeviceLogTimeout bounds the /log download, which streams the whole CSV.
	DeviceLogTimeout = 15 * time.Second

	// FlashLifetime is how long a status line message stays visible.
	FlashLifetime = 6 * time.Second

	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second
)
