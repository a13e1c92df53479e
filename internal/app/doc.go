// Package app wires configuration, the gateway client, the state store and
// the user interface together.
//
// Run is the interactive entry point: it loads config and prefs, sends logs
// to a file, starts the gateway loop and a getValues poller, then hands the
// terminal to the ui package. Watch, Snapshot, Set, Switch and DeviceLog back
// the non-interactive commands and log to the console instead.
//
// Fatal errors (bad config, unparsable log level, unusable log file) are
// returned. Connection problems are not: the gateway keeps retrying and the
// store records the last error for display.
package app
