// Package device defines the sensor-hardware catalog: device families, the
// static registry mapping USB ids and wireless node names to specs, and the
// discovered-device records shared between scanners and the connection
// manager.
package device
