package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Conductor.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Devices returns every currently known device.
func (c *Client) Devices() (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.client.Call("Conductor.Devices", DevicesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Device returns a single device by id.
func (c *Client) Device(deviceID string) (*DeviceResponse, error) {
	var resp DeviceResponse
	if err := c.client.Call("Conductor.Device", DeviceRequest{DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connect hands a device to its owning module.
func (c *Client) Connect(deviceID string) (*ConnectResponse, error) {
	var resp ConnectResponse
	if err := c.client.Call("Conductor.Connect", ConnectRequest{DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disconnect takes a device back from its module.
func (c *Client) Disconnect(deviceID string) (*DisconnectResponse, error) {
	var resp DisconnectResponse
	if err := c.client.Call("Conductor.Disconnect", DisconnectRequest{DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Modules summarizes the module processes.
func (c *Client) Modules() (*ModulesResponse, error) {
	var resp ModulesResponse
	if err := c.client.Call("Conductor.Modules", ModulesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModuleStart launches one module process.
func (c *Client) ModuleStart(moduleID string) (*ModuleStartResponse, error) {
	var resp ModuleStartResponse
	if err := c.client.Call("Conductor.ModuleStart", ModuleStartRequest{ModuleID: moduleID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModuleStop gracefully stops one module process.
func (c *Client) ModuleStop(moduleID string) (*ModuleStopResponse, error) {
	var resp ModuleStopResponse
	if err := c.client.Call("Conductor.ModuleStop", ModuleStopRequest{ModuleID: moduleID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionStart opens a recording session.
func (c *Client) SessionStart() (*SessionStartResponse, error) {
	var resp SessionStartResponse
	if err := c.client.Call("Conductor.SessionStart", SessionStartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionStop closes the active session.
func (c *Client) SessionStop() (*SessionStopResponse, error) {
	var resp SessionStopResponse
	if err := c.client.Call("Conductor.SessionStop", SessionStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionRecord starts capture in the active session.
func (c *Client) SessionRecord() (*SessionRecordResponse, error) {
	var resp SessionRecordResponse
	if err := c.client.Call("Conductor.SessionRecord", SessionRecordRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionPause pauses capture in the active session.
func (c *Client) SessionPause() (*SessionPauseResponse, error) {
	var resp SessionPauseResponse
	if err := c.client.Call("Conductor.SessionPause", SessionPauseRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventTail returns the newest journal events.
func (c *Client) EventTail(limit int) (*EventTailResponse, error) {
	var resp EventTailResponse
	if err := c.client.Call("Conductor.EventTail", EventTailRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon to tear down and exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.client.Call("Conductor.Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
