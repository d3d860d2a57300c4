// Package mesh manages the wireless sensor network: it watches for the mesh
// coordinator dongle on USB, opens it over serial, runs periodic node
// discovery, and reports node arrival, loss, and telemetry. Node loss is
// detected only at coordinator disconnect; all nodes drop as a batch when
// the dongle goes away.
package mesh
