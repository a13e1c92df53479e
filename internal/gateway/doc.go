// Package gateway maintains the dashboard's WebSocket session with the battery
// controller: it primes state on open, routes inbound frames into the state
// store, buffers configuration edits until they are saved, and reconnects after
// a fixed delay whenever the socket closes. A reset frame from the controller
// shows a restart notice and reloads the session once the reload delay passes.
package gateway
