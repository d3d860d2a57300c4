// Package ipc provides JSON-RPC communication between the conductor CLI
// and the daemon over a Unix domain socket.
package ipc
