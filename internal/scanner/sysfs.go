package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsEnumerator lists USB serial ports through /sys/class/tty, resolving
// each port's vendor/product id from the parent USB device attributes.
type SysfsEnumerator struct {
	// Root overrides /sys for tests.
	Root string
	// DevRoot overrides /dev for tests.
	DevRoot string
}

// NewSysfsEnumerator builds the production enumerator.
func NewSysfsEnumerator() *SysfsEnumerator {
	return &SysfsEnumerator{Root: "/sys", DevRoot: "/dev"}
}

// Enumerate walks /sys/class/tty and returns every port whose USB ancestry
// exposes idVendor/idProduct. Non-USB ttys (no device link or no id
// attributes) are skipped silently.
func (e *SysfsEnumerator) Enumerate(ctx context.Context) ([]Port, error) {
	classDir := filepath.Join(e.Root, "class", "tty")
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", classDir, err)
	}

	var ports []Port
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		deviceLink := filepath.Join(classDir, name, "device")
		if _, err := os.Stat(deviceLink); err != nil {
			continue
		}
		vendorID, productID, ok := resolveUSBIDs(deviceLink)
		if !ok {
			continue
		}
		ports = append(ports, Port{
			Path:      filepath.Join(e.DevRoot, name),
			VendorID:  vendorID,
			ProductID: productID,
		})
	}
	return ports, nil
}

// resolveUSBIDs climbs from a tty's device node toward the USB device that
// carries idVendor/idProduct attribute files.
func resolveUSBIDs(start string) (uint16, uint16, bool) {
	dir, err := filepath.EvalSymlinks(start)
	if err != nil {
		return 0, 0, false
	}
	for i := 0; i < 6; i++ {
		vendor, vErr := readHexAttr(filepath.Join(dir, "idVendor"))
		product, pErr := readHexAttr(filepath.Join(dir, "idProduct"))
		if vErr == nil && pErr == nil {
			return vendor, product, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return 0, 0, false
}

func readHexAttr(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(value), nil
}
