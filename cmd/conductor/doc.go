// Command conductor is the CLI for controlling the conductor daemon over
// its Unix socket: device discovery, module supervision, and sessions.
package main
