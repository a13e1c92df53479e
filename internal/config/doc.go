// Package config loads battdash configuration and user preferences.
//
// # Overview
//
// battdash needs to know where the battery controller lives, how patiently to
// retry when the controller drops off the network, and which settings fields
// the controller exposes. All of it comes from a small TOML file; none of it
// is required.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/battdash/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Host: 192.168.4.1 (the controller's access-point address)
//   - Reconnect delay: 5s, fixed, retried forever
//   - Reload delay after a reset notice: 1s
//   - Client log: ~/.local/state/battdash/battdash.log
//   - Fields: the firmware thresholds, see DefaultFields
//
// # TOML Format
//
//	host = "192.168.4.1"
//	reconnect_delay_ms = 5000
//	reload_delay_ms = 1000
//	log_file = "~/.local/state/battdash/battdash.log"
//
//	[[fields]]
//	id = "slider1"
//	label = "Log interval"
//	unit = "s"
//	min = 1.0
//	max = 60.0
//
// Field identifiers must be unique. Identifiers starting with "slider" are
// shown as sliders: the controller's value drives both the label and the
// control.
//
// # Host Normalization
//
// The host may be written as a bare address, host:port, or a URL copied from a
// browser; NormalizeHost reduces all of them to host[:port]. GatewayURL and
// BaseURL then derive the fixed ws://<host>/ws and http://<host> endpoints.
//
// # Preferences
//
// LoadPrefs and SavePrefs persist UI preferences (theme, last view) to
// ~/.config/battdash/prefs.toml. Unlike Load, LoadPrefs never fails: an
// unreadable or invalid file yields the defaults.
package config
