// Package device speaks the battery controller's wire formats.
//
// # Overview
//
// The controller exposes two surfaces on the same host:
//
//   - a WebSocket gateway at ws://<host>/ws carrying plain text frames
//   - a handful of HTTP GET endpoints used by the original web page as links
//
// This package owns the formats of both. It does not hold a connection; the
// gateway package drives the WebSocket and feeds frames through Decode.
//
// # Frames
//
// Outbound (client to controller):
//
//	getValues            request telemetry
//	getConf              request current settings
//	conf{"id":"value"}   write settings; tag and JSON are not delimited
//
// Inbound (controller to client), decoded into a tagged Message:
//
//	reset                                   KindReset, the controller is rebooting
//	{"batteryStatus":[...],"controlSwitches":[...]}   KindStatus
//	{"slider1":"5","max_current":"1"}        KindFieldSync
//
// Frames that are neither the literal reset nor a JSON object of a known
// shape return an error; callers log and drop them.
//
// # Pending Edits
//
// Edits is the client-side buffer of settings changes. Set is last-write-wins,
// Flush hands the buffer to EncodeConf and leaves it empty.
//
// # HTTP Side Channel
//
// Client wraps the endpoints:
//
//	GET /switch_on?battery=N    plain text reply, 400 if battery is missing
//	GET /switch_off?battery=N
//	GET /log                    HTML table rendered from the SD card CSV
//
// ParseLogTable turns the /log page into LogRecord values. The firmware writes
// its CSV header into the data file on every boot, so header-looking rows show
// up between data rows; they are returned with Valid unset rather than
// dropped.
package device
