// Package scanner watches the operating system's serial-port enumeration for
// registered capture hardware. A fixed-interval poll diffs the visible ports
// against the tracked set and emits found/lost events; an optional udev
// netlink listener pokes the poll loop for faster attach detection.
package scanner
