// Package journal persists a rolling log of supervisor events (device
// arrivals, connections, module transitions, session boundaries) in a
// SQLite database so operators can reconstruct what the rig did after the
// fact. The journal is advisory: a write failure never blocks the event's
// delivery to live listeners.
package journal
