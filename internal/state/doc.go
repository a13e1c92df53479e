// Package state holds the view model shared between the gateway and the UI.
//
// # Overview
//
// The gateway's event loop is the only writer; the UI (and the headless
// commands) read copies on their own schedule. The Store plays the role the
// DOM played for the controller's original web page: it is where incoming
// frames land and where the renderer looks.
//
//	Producer (gateway loop):          Consumer (UI tick):
//	┌─────────────────────┐          ┌─────────────────────┐
//	│ SetConnection()     │          │                     │
//	│ ApplyFields()       │─────────→│ store.Snapshot()    │
//	│ ApplyStatus()       │ (mutex)  │      ↓              │
//	│ ShowRestartNotice() │          │ render              │
//	│ Reset()             │          │                     │
//	└─────────────────────┘          └─────────────────────┘
//
// # Fields
//
// NewStore takes the field registry from config. ApplyFields writes only
// registered identifiers and reports the rest as ignored, so an unknown key
// from the controller is a no-op for the view. Slider fields (ids starting
// with "slider") receive the value both as label text and as control value.
//
// # Telemetry
//
// ApplyStatus replaces the battery and switch lists wholesale on every
// frame. The controller always sends complete lists, so there is nothing to
// merge.
//
// # Connection Bookkeeping
//
//   - Attempts counts every Connecting transition
//   - ConsecutiveFailures grows on Disconnected-with-error, resets on Open
//   - IsOffline is true after two failures in a row
//
// # Restart Notice
//
// ShowRestartNotice sets the notice and the Restarting state. Reset, called
// by the gateway when it reloads the session, clears the notice together with
// all telemetry and field values.
//
// # Defensive Copying
//
// Snapshot clones the slices and wraps LastError so callers can't mutate the
// stored state. The zero Store is usable but has no registered fields.
package state
