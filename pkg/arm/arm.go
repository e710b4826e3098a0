package arm

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// The CR5's dashboard service speaks a plain-text protocol on TCP port
// 29999.  Commands look like function calls ("EnableRobot()") and every
// reply is "code,{body},Command();" where code 0 means success.

const (
	DashboardPort = 29999

	dialTimeout  = 2 * time.Second
	replyTimeout = 2 * time.Second
	maxTries     = 3
)

type Pose struct {
	X, Y, Z    float64
	Rx, Ry, Rz float64
}

// Distance returns the translation-only distance between two poses, in mm.
func Distance(a, b Pose) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type Interface interface {
	Enable() error
	Disable() error
	ClearError() error

	// Move interprets a 6-element jog vector, one signed unit per
	// Cartesian degree of freedom in the order x, y, z, rx, ry, rz.
	// Each entry must be -1, 0 or +1.  The first nonzero entry selects
	// the axis to jog; an all-zero vector stops jogging.
	Move(values []int) error
	StopJog() error

	ServoP(p Pose) error
	GetPose() (Pose, error)

	Close() error
}

var jogAxisNames = [6]string{"X", "Y", "Z", "Rx", "Ry", "Rz"}

// jogCommand renders a jog vector as a dashboard command, or "" for the
// all-zero vector.
func jogCommand(values []int) (string, error) {
	if len(values) != 6 {
		return "", fmt.Errorf("jog vector must have 6 entries, got %d", len(values))
	}
	for i, v := range values {
		switch {
		case v == 0:
		case v == 1:
			return fmt.Sprintf("MoveJog(%s+)", jogAxisNames[i]), nil
		case v == -1:
			return fmt.Sprintf("MoveJog(%s-)", jogAxisNames[i]), nil
		default:
			return "", fmt.Errorf("jog entry %d out of range: %d", i, v)
		}
	}
	return "", nil
}

type Client struct {
	mu   sync.Mutex
	addr string
	dial func() (net.Conn, error)
	conn net.Conn
	rd   *bufio.Reader

	// OnRetry, if set, is called each time a write fails and the
	// connection is reopened.
	OnRetry func()
}

func New(addr string) (*Client, error) {
	c := &Client{
		addr: addr,
		dial: func() (net.Conn, error) {
			return net.DialTimeout("tcp", addr, dialTimeout)
		},
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

var _ Interface = (*Client)(nil)

func (c *Client) connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)
	return nil
}

// do sends one dashboard command and returns the reply body.  Failed
// writes reopen the connection and retry, in case the controller has
// dropped us.
func (c *Client) do(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for tries := 0; tries < maxTries; tries++ {
		if tries > 0 {
			if c.OnRetry != nil {
				c.OnRetry()
			}
			time.Sleep(100 * time.Millisecond)
		}
		if c.conn == nil {
			if lastErr = c.connect(); lastErr != nil {
				continue
			}
		}
		c.conn.SetDeadline(time.Now().Add(replyTimeout))
		if _, lastErr = c.conn.Write([]byte(cmd)); lastErr != nil {
			c.dropConn()
			continue
		}
		raw, err := c.rd.ReadString(';')
		if err != nil {
			lastErr = err
			c.dropConn()
			continue
		}
		code, body, err := parseReply(raw)
		if err != nil {
			return "", err
		}
		if code != 0 {
			return "", fmt.Errorf("dashboard error %d from %s", code, cmd)
		}
		return body, nil
	}
	return "", fmt.Errorf("dashboard command %s failed: %w", cmd, lastErr)
}

func (c *Client) dropConn() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.rd = nil
}

func parseReply(raw string) (code int, body string, err error) {
	raw = strings.TrimSpace(raw)
	comma := strings.Index(raw, ",")
	if comma < 0 {
		return 0, "", fmt.Errorf("malformed dashboard reply %q", raw)
	}
	code, err = strconv.Atoi(strings.TrimSpace(raw[:comma]))
	if err != nil {
		return 0, "", fmt.Errorf("malformed dashboard reply %q", raw)
	}
	open := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if open < 0 || end < open {
		return 0, "", fmt.Errorf("malformed dashboard reply %q", raw)
	}
	return code, raw[open+1 : end], nil
}

func parsePose(body string) (Pose, error) {
	parts := strings.Split(body, ",")
	if len(parts) < 6 {
		return Pose{}, fmt.Errorf("pose reply has %d fields, want 6", len(parts))
	}
	var vals [6]float64
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Pose{}, fmt.Errorf("bad pose field %q: %w", parts[i], err)
		}
		vals[i] = v
	}
	return Pose{X: vals[0], Y: vals[1], Z: vals[2], Rx: vals[3], Ry: vals[4], Rz: vals[5]}, nil
}

func (c *Client) Enable() error {
	_, err := c.do("EnableRobot()")
	return err
}

func (c *Client) Disable() error {
	_, err := c.do("DisableRobot()")
	return err
}

func (c *Client) ClearError() error {
	_, err := c.do("ClearError()")
	return err
}

func (c *Client) Move(values []int) error {
	cmd, err := jogCommand(values)
	if err != nil {
		return err
	}
	if cmd == "" {
		return c.StopJog()
	}
	_, err = c.do(cmd)
	return err
}

func (c *Client) StopJog() error {
	_, err := c.do("MoveJog()")
	return err
}

func (c *Client) ServoP(p Pose) error {
	_, err := c.do(fmt.Sprintf("ServoP(%.3f,%.3f,%.3f,%.3f,%.3f,%.3f)",
		p.X, p.Y, p.Z, p.Rx, p.Ry, p.Rz))
	return err
}

func (c *Client) GetPose() (Pose, error) {
	body, err := c.do("GetPose()")
	if err != nil {
		return Pose{}, err
	}
	return parsePose(body)
}

// Raw sends an arbitrary dashboard command; used by the armtests tool.
func (c *Client) Raw(cmd string) (string, error) {
	return c.do(cmd)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.rd = nil
	return err
}

// Startup clears any latched alarm and enables the arm, retrying until it
// succeeds or the context is cancelled.  The controller refuses motion
// commands until this has completed.
func Startup(ctx context.Context, a Interface) error {
	for {
		err := a.ClearError()
		if err == nil {
			err = a.Enable()
		}
		if err == nil {
			return nil
		}
		fmt.Printf("Arm startup not ready: %v.\n", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}
