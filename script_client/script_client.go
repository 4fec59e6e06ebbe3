// Package script_client uploads control and custom scripts to the
// controller's secondary interface on port 30002: plain TCP, ASCII script
// text terminated by newlines, connection closed after the send.
//
// Script templates may carry version markers: a line whose first token is
// $M.N is kept (marker stripped) when the live controller version is at
// least M.N and deleted otherwise. This is a line-oriented pre-processor,
// not a macro expander.
package script_client

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"urdriver/shared"
)

const SEND_TIMEOUT = 5 * time.Second

// Client sends script text to the secondary interface. The controller
// version gates template markers; set it once after the RTDE session has
// fetched it.
type Client struct {
	host    string
	port    int
	version shared.ControllerVersion
}

func NewClient(host string, port int) *Client {
	if port == 0 {
		port = shared.DEFAULT_SCRIPT_PORT
	}
	return &Client{host: host, port: port}
}

// SetControllerVersion pins the version used for $M.N markers.
func (c *Client) SetControllerVersion(v shared.ControllerVersion) {
	c.version = v
}

// UploadControlScript sends the per-session control program. The text runs
// through the version pre-processor first.
func (c *Client) UploadControlScript(text string) error {
	return c.sendScript(text)
}

// SendCustomScript sends a one-shot script, replacing whatever program the
// controller is running.
func (c *Client) SendCustomScript(text string) error {
	return c.sendScript(text)
}

// SendCustomScriptFile reads a script from disk and sends it.
func (c *Client) SendCustomScriptFile(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script file: %w", err)
	}
	return c.sendScript(string(text))
}

func (c *Client) sendScript(text string) error {
	processed, err := PreprocessScript(text, c.version)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(processed, "\n") {
		processed += "\n"
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", c.host, c.port), SEND_TIMEOUT)
	if err != nil {
		return fmt.Errorf("dial script interface: %w", err)
	}
	defer shared.SafeClose(conn)

	if err := conn.SetWriteDeadline(time.Now().Add(SEND_TIMEOUT)); err != nil {
		return err
	}
	if _, err := conn.Write([]byte(processed)); err != nil {
		return fmt.Errorf("send script: %w", err)
	}
	shared.DebugPrint("sent %d bytes of script to %s:%d", len(processed), c.host, c.port)
	return nil
}

// PreprocessScript applies $M.N markers against the live version: marker
// lines at or below the live version survive with the marker stripped,
// newer ones are deleted whole. A marker that does not parse aborts the
// upload.
func PreprocessScript(text string, version shared.ControllerVersion) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "$") {
			out = append(out, line)
			continue
		}

		marker := trimmed
		rest := ""
		if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
			marker = trimmed[:idx]
			rest = strings.TrimLeft(trimmed[idx:], " \t")
		}

		major, minor, err := parseMarker(marker)
		if err != nil {
			return "", fmt.Errorf("%w: line %d: %v", shared.ErrScriptTemplate, i+1, err)
		}

		if !version.AtLeast(major, minor) {
			continue // controller too old for this line
		}
		indent := line[:len(line)-len(trimmed)]
		out = append(out, indent+rest)
	}

	return strings.Join(out, "\n"), nil
}

// parseMarker splits "$M.N" into its version pair.
func parseMarker(marker string) (uint32, uint32, error) {
	body := strings.TrimPrefix(marker, "$")
	parts := strings.Split(body, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("marker %q is not $MAJOR.MINOR", marker)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("marker %q: bad major version", marker)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("marker %q: bad minor version", marker)
	}
	return uint32(major), uint32(minor), nil
}
