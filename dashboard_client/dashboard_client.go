// Package dashboard_client speaks the dashboard server's line protocol on
// port 29999: one ASCII command per line, one reply line per command. The
// dashboard is a collaborator next to the RTDE core; it powers the arm,
// loads and runs programs, and clears safety popups.
package dashboard_client

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"urdriver/shared"
)

const (
	CONNECT_TIMEOUT = 2 * time.Second
	REPLY_TIMEOUT   = 5 * time.Second
)

// Client holds one dashboard connection. Commands are serialized; the
// dashboard answers strictly one line per request.
type Client struct {
	host string
	port int

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func NewClient(host string, port int) *Client {
	if port == 0 {
		port = shared.DEFAULT_DASHBOARD_PORT
	}
	return &Client{host: host, port: port}
}

// Connect dials the dashboard and consumes its welcome banner.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", c.host, c.port), CONNECT_TIMEOUT)
	if err != nil {
		return fmt.Errorf("dial dashboard: %w", err)
	}
	reader := bufio.NewReader(conn)

	conn.SetReadDeadline(time.Now().Add(REPLY_TIMEOUT))
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return fmt.Errorf("dashboard banner: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	shared.DebugPrint("dashboard connected: %s", strings.TrimSpace(banner))

	c.conn = conn
	c.reader = reader
	return nil
}

// Disconnect closes the dashboard connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		shared.SafeClose(c.conn)
		c.conn = nil
		c.reader = nil
	}
}

// Send issues one command line and returns the trimmed reply line.
func (c *Client) Send(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return "", shared.ErrNotConnected
	}

	if _, err := fmt.Fprintf(c.conn, "%s\n", command); err != nil {
		return "", fmt.Errorf("dashboard send: %w", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(REPLY_TIMEOUT))
	defer c.conn.SetReadDeadline(time.Time{})

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("dashboard reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) PowerOn() error {
	_, err := c.Send("power on")
	return err
}

func (c *Client) PowerOff() error {
	_, err := c.Send("power off")
	return err
}

func (c *Client) BrakeRelease() error {
	_, err := c.Send("brake release")
	return err
}

// Load points the controller at a program file. The dashboard reports
// missing files in its reply line.
func (c *Client) Load(program string) error {
	reply, err := c.Send(fmt.Sprintf("load %s", program))
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "File not found") || strings.HasPrefix(reply, "Error") {
		return fmt.Errorf("%w: %s", shared.ErrSetupRejected, reply)
	}
	return nil
}

func (c *Client) Play() error {
	reply, err := c.Send("play")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(reply, "Starting program") {
		return fmt.Errorf("%w: %s", shared.ErrSetupRejected, reply)
	}
	return nil
}

func (c *Client) Stop() error {
	_, err := c.Send("stop")
	return err
}

// Running reports whether a program is executing.
func (c *Client) Running() (bool, error) {
	reply, err := c.Send("running")
	if err != nil {
		return false, err
	}
	return strings.HasSuffix(reply, "true"), nil
}

// RobotMode returns the dashboard's mode string, e.g. "RUNNING".
func (c *Client) RobotMode() (string, error) {
	reply, err := c.Send("robotmode")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "Robotmode:")), nil
}

// UnlockProtectiveStop clears a protective stop. The controller enforces a
// five second delay from the stop before this succeeds.
func (c *Client) UnlockProtectiveStop() error {
	reply, err := c.Send("unlock protective stop")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(reply, "Protective stop releasing") {
		return fmt.Errorf("%w: %s", shared.ErrControllerStopped, reply)
	}
	return nil
}

func (c *Client) CloseSafetyPopup() error {
	_, err := c.Send("close safety popup")
	return err
}

// Popup shows a message popup on the teach pendant.
func (c *Client) Popup(message string) error {
	_, err := c.Send(fmt.Sprintf("popup %s", message))
	return err
}

func (c *Client) ClosePopup() error {
	_, err := c.Send("close popup")
	return err
}
