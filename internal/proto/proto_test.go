package proto

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCommandEncodeIsSingleLine(t *testing.T) {
	cmd := NewCommand(CmdAssignDevice)
	cmd.DeviceID = "/dev/ttyACM0"
	cmd.Family = "drt"
	cmd.Port = "/dev/ttyACM0"
	cmd.Baud = 115200

	line, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Fatal("encoded command missing trailing newline")
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Fatal("encoded command must be exactly one line")
	}

	var decoded map[string]any
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded["command"] != CmdAssignDevice {
		t.Fatalf("command = %v", decoded["command"])
	}
	if decoded["baud"] != float64(115200) {
		t.Fatalf("baud = %v", decoded["baud"])
	}
	if decoded["timestamp"] == "" {
		t.Fatal("missing timestamp")
	}
	// Unused params stay out of the wire object.
	if _, ok := decoded["session_dir"]; ok {
		t.Fatal("session_dir should be omitted when empty")
	}
}

func TestCommandEncodeRejectsEmptyName(t *testing.T) {
	if _, err := (Command{}).Encode(); err == nil {
		t.Fatal("expected error for empty command name")
	}
}

func TestDecodeStatus(t *testing.T) {
	line := []byte(`{"type":"status","status":"device_assigned","timestamp":"2026-08-24T10:00:00Z","data":{"device_id":"/dev/ttyACM0"}}`)
	st, err := DecodeStatus(line)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if st.Status != StatusDeviceAssigned {
		t.Fatalf("status = %q", st.Status)
	}
	if st.DataString("device_id") != "/dev/ttyACM0" {
		t.Fatalf("device_id = %q", st.DataString("device_id"))
	}
}

func TestDecodeStatusRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"telemetry","status":"x"}`),
		[]byte(`{"type":"status","status":""}`),
	}
	for _, line := range cases {
		if _, err := DecodeStatus(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}
