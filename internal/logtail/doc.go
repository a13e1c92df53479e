// Package logtail reads the tail of battdash's own log file and renders its
// JSON lines for the client log view.
//
// Read keeps a ring buffer of maxLines entries, so only one pass over the file
// is needed regardless of its size, and returns the lines oldest first. A
// missing file is not an error: the log is created lazily on first write.
//
// Format runs a zerolog line through a colourless zerolog.ConsoleWriter,
// turning
//
//	{"level":"info","component":"gateway","time":"2026-10-16T09:14:02Z","message":"gateway connection opened"}
//
// into
//
//	2026-10-16 09:14:02 INF [gateway] gateway connection opened
//
// The component moves into brackets after the level and the remaining keys
// follow the message as sorted key=value pairs. Lines that are not JSON are
// returned unchanged.
package logtail
