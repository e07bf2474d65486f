package x11

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const x11BasePort = 6000

// Display is a parsed display string.
type Display struct {
	// Protocol is the explicit connection protocol ("unix", "tcp", "inet"
	// or "inet6"), or empty when the display string named none.
	Protocol string
	// Host is the server hostname, the literal "unix", an absolute socket
	// path, or empty for the local server.
	Host string
	// Number is the display number.
	Number int
	// Screen is the preferred screen.
	Screen int
}

// ParseDisplay parses a display string of the form
// [protocol/]host:display[.screen]. An empty name falls back to the DISPLAY
// environment variable, and a name starting with / is taken as an absolute
// path to a unix socket.
func ParseDisplay(name string) (Display, error) {
	if name == "" {
		name = os.Getenv("DISPLAY")
	}
	if name == "" {
		return Display{}, fmt.Errorf("%w: empty display name and DISPLAY unset", ErrDisplayParse)
	}
	if strings.HasPrefix(name, "/") {
		return Display{Protocol: "unix", Host: name}, nil
	}

	idx := strings.LastIndex(name, ":")
	if idx < 0 {
		return Display{}, fmt.Errorf("%w: %q has no display number", ErrDisplayParse, name)
	}
	hostPart, numPart := name[:idx], name[idx+1:]

	var d Display
	if slash := strings.Index(hostPart, "/"); slash >= 0 {
		d.Protocol = hostPart[:slash]
		d.Host = hostPart[slash+1:]
		switch d.Protocol {
		case "unix", "tcp", "inet", "inet6":
		default:
			return Display{}, fmt.Errorf("%w: unknown protocol %q", ErrDisplayParse, d.Protocol)
		}
	} else {
		d.Host = hostPart
	}

	numStr := numPart
	var err error
	if dot := strings.Index(numPart, "."); dot >= 0 {
		numStr = numPart[:dot]
		if d.Screen, err = parseDisplayNumber(numPart[dot+1:]); err != nil {
			return Display{}, err
		}
	}
	if d.Number, err = parseDisplayNumber(numStr); err != nil {
		return Display{}, err
	}
	return d, nil
}

// String reconstructs the display string. The result parses back to the
// same Display.
func (d Display) String() string {
	if d.Protocol == "unix" && strings.HasPrefix(d.Host, "/") {
		return d.Host
	}
	var b strings.Builder
	if d.Protocol != "" {
		b.WriteString(d.Protocol)
		b.WriteByte('/')
	}
	b.WriteString(d.Host)
	fmt.Fprintf(&b, ":%d", d.Number)
	if d.Screen != 0 {
		fmt.Fprintf(&b, ".%d", d.Screen)
	}
	return b.String()
}

func parseDisplayNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a display number", ErrDisplayParse, s)
	}
	return n, nil
}

// Addr returns the network and address to dial for this display.
func (d Display) Addr() (network, addr string) {
	if d.unixSocket() {
		path := d.Host
		if !strings.HasPrefix(path, "/") {
			path = fmt.Sprintf("/tmp/.X11-unix/X%d", d.Number)
		}
		return "unix", path
	}

	host := d.Host
	if host == "" {
		host = "localhost"
	}
	network = "tcp"
	switch d.Protocol {
	case "inet":
		network = "tcp4"
	case "inet6":
		network = "tcp6"
	}
	return network, net.JoinHostPort(host, strconv.Itoa(x11BasePort+d.Number))
}

func (d Display) unixSocket() bool {
	switch {
	case d.Protocol == "unix":
		return true
	case d.Protocol != "":
		return false
	default:
		return d.Host == "" || d.Host == "unix" || strings.HasPrefix(d.Host, "/")
	}
}
