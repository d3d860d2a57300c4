package mesh

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/serial"
)

// SerialOpener opens coordinator dongles over their USB serial port.
type SerialOpener struct {
	// ReadTimeout bounds each line read during discovery.
	ReadTimeout time.Duration
}

// NewSerialOpener builds the production opener.
func NewSerialOpener() *SerialOpener {
	return &SerialOpener{ReadTimeout: 2 * time.Second}
}

// Open connects to the coordinator at the given port and baud rate.
func (o *SerialOpener) Open(ctx context.Context, port string, baud int) (Coordinator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p, err := serial.Open(&serial.Config{
		Address:  port,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open coordinator %s: %w", port, err)
	}
	return &serialCoordinator{port: p, reader: bufio.NewReader(p)}, nil
}

// serialCoordinator speaks the coordinator's line protocol: a discovery pass
// is requested with "ND\r\n" and answered with one "NODE <addr> <name>
// <battery%> <rssi>" line per visible node, terminated by "OK".
type serialCoordinator struct {
	port   serial.Port
	reader *bufio.Reader
}

func (c *serialCoordinator) Discover(ctx context.Context) ([]NodeInfo, error) {
	if _, err := c.port.Write([]byte("ND\r\n")); err != nil {
		return nil, fmt.Errorf("request discovery: %w", err)
	}

	var nodes []NodeInfo
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read discovery response: %w", err)
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "OK" || line == "END":
			return nodes, nil
		case strings.HasPrefix(line, "ERROR"):
			return nil, fmt.Errorf("coordinator reported %q", line)
		case strings.HasPrefix(line, "NODE "):
			node, err := parseNodeLine(line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		default:
			// Status chatter between responses is ignored.
		}
	}
}

func (c *serialCoordinator) Close() error {
	return c.port.Close()
}

func parseNodeLine(line string) (NodeInfo, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return NodeInfo{}, fmt.Errorf("malformed node record %q", line)
	}
	battery, err := strconv.Atoi(fields[3])
	if err != nil {
		return NodeInfo{}, fmt.Errorf("malformed battery in %q: %w", line, err)
	}
	signal, err := strconv.Atoi(fields[4])
	if err != nil {
		return NodeInfo{}, fmt.Errorf("malformed signal in %q: %w", line, err)
	}
	return NodeInfo{
		Addr:           fields[1],
		Name:           fields[2],
		BatteryPercent: battery,
		SignalDBM:      signal,
	}, nil
}
