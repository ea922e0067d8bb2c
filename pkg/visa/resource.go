package visa

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultSocketPort is the raw SCPI socket port of LXI instruments.
const DefaultSocketPort = 5025

// ErrUnsupportedResource is returned for resource strings this package cannot open.
var ErrUnsupportedResource = errors.New("unsupported resource")

// Kind identifies the transport behind a resource string.
type Kind int

const (
	// Socket is a raw SCPI TCP socket.
	Socket Kind = iota
	// Serial is an ASRL serial port.
	Serial
)

func (k Kind) String() string {
	switch k {
	case Socket:
		return "socket"
	case Serial:
		return "serial"
	default:
		return "unknown"
	}
}

// Resource is a parsed VISA resource string.
type Resource struct {
	Raw    string
	Kind   Kind
	Host   string // Socket only
	Port   int    // Socket only
	Device string // Serial only
}

// Address returns the dial address (host:port) or the serial device path.
func (r Resource) Address() string {
	if r.Kind == Serial {
		return r.Device
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func (r Resource) String() string {
	return r.Raw
}

// ParseResource parses the VISA resource strings understood by Open:
//
//	TCPIP[board]::host::port::SOCKET
//	TCPIP[board]::host[::lan_device][::INSTR]
//	ASRL<device>[::INSTR]
//	ASRL::<device>[::INSTR]
//
// LAN instruments addressed with INSTR are reached through their raw SCPI
// socket on DefaultSocketPort.
func ParseResource(s string) (Resource, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, "::")
	head := strings.ToUpper(parts[0])

	switch {
	case strings.HasPrefix(head, "TCPIP"):
		if !isBoard(head[len("TCPIP"):]) {
			return Resource{}, fmt.Errorf("%w: %q: bad board number", ErrUnsupportedResource, raw)
		}
		return parseTCPIP(raw, parts[1:])
	case strings.HasPrefix(head, "ASRL"):
		return parseASRL(raw, parts)
	default:
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, raw)
	}
}

func parseTCPIP(raw string, rest []string) (Resource, error) {
	if len(rest) == 0 || rest[0] == "" {
		return Resource{}, fmt.Errorf("%w: %q: missing host", ErrUnsupportedResource, raw)
	}
	res := Resource{Raw: raw, Kind: Socket, Host: rest[0], Port: DefaultSocketPort}
	rest = rest[1:]

	if n := len(rest); n > 0 && strings.EqualFold(rest[n-1], "SOCKET") {
		if n != 2 {
			return Resource{}, fmt.Errorf("%w: %q: SOCKET needs a port", ErrUnsupportedResource, raw)
		}
		port, err := strconv.Atoi(rest[0])
		if err != nil || port <= 0 || port > 65535 {
			return Resource{}, fmt.Errorf("%w: %q: invalid port %q", ErrUnsupportedResource, raw, rest[0])
		}
		res.Port = port
		return res, nil
	}

	if n := len(rest); n > 0 && strings.EqualFold(rest[n-1], "INSTR") {
		rest = rest[:n-1]
	}
	if len(rest) > 1 {
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, raw)
	}
	return res, nil
}

func parseASRL(raw string, parts []string) (Resource, error) {
	device := parts[0][len("ASRL"):]
	rest := parts[1:]
	if n := len(rest); n > 0 && strings.EqualFold(rest[n-1], "INSTR") {
		rest = rest[:n-1]
	}
	if device == "" && len(rest) > 0 {
		device, rest = rest[0], rest[1:]
	}
	if device == "" || len(rest) > 0 {
		return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, raw)
	}
	// ASRL3::INSTR means the third COM port.
	if _, err := strconv.Atoi(device); err == nil {
		device = "COM" + device
	}
	return Resource{Raw: raw, Kind: Serial, Device: device}, nil
}

func isBoard(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
