// Package ui is the battdash terminal dashboard, built on Bubble Tea.
//
// The Model polls state.Store on a tick and renders one of four views:
//
//   - Batteries: per-battery telemetry with on/off switching over HTTP
//   - Configuration: the registered fields, edited locally and sent with save
//   - Device log: the controller's SD card log fetched from /log
//   - Client log: a tail of battdash's own zerolog file
//
// While the controller reports a restart, the whole screen is replaced by the
// restart notice and only ctrl+c is accepted.
//
// Edits and saves go through a Commander (the gateway client); switching and
// the device log go through a device.Controller. Theme and view choices are
// persisted with config.SavePrefs.
package ui
