// Package connection merges the wired scanner's and mesh manager's device
// streams into one unified view, drives connect/disconnect by assigning
// devices to their owning modules, and enforces the wired-vs-wireless
// mutual exclusion rule per family.
package connection
