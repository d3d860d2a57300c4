// Package module supervises the per-family recording subprocesses. Each
// module runs as one child process speaking the newline-delimited JSON
// command protocol on stdin/stdout; stderr carries free-form diagnostics.
// The manager routes device and session operations to the right process,
// creating processes lazily on first use.
package module
