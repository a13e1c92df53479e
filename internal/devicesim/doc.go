// Package devicesim simulates the battery controller's network surface so the
// dashboard can be developed and tested without hardware.
//
// The simulator serves the WebSocket gateway at /ws, the switch endpoints, the
// SD card log table at /log and the status page at /. Saving a configuration
// broadcasts the reset notice and then drops every client, the way the real
// controller does when it reboots.
package devicesim
