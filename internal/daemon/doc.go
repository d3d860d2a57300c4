// Package daemon wires the discovery, connection, module, session, and
// journal layers into one supervised runtime, enforces single-instance
// execution with a lock file, and exposes the daemon's state to the IPC
// and HTTP surfaces.
package daemon
