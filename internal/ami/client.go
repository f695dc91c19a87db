package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrActionFailed is returned when the PBX answers an action with anything but Success
	ErrActionFailed = errors.New("ami action failed")
	// ErrClosed is returned for actions on a closed connection
	ErrClosed = errors.New("ami connection closed")
)

// Options configures a manager connection
type Options struct {
	Addr        string
	Username    string
	Secret      string
	DialTimeout time.Duration
	EventBuffer int
}

// Client is a logged-in manager connection. Unsolicited events are
// delivered on Events(); responses are matched to actions by ActionID.
type Client struct {
	conn   net.Conn
	parser *Parser

	wmu sync.Mutex
	w   *bufio.Writer

	pmu     sync.Mutex
	pending map[string]chan Event

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	err       error

	logger zerolog.Logger
}

// Dial connects to the manager interface and logs in
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}

	c, err := NewClient(ctx, conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient performs the banner and login handshake over an established connection
func NewClient(ctx context.Context, conn net.Conn, opts Options, logger zerolog.Logger) (*Client, error) {
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 1024
	}

	r := bufio.NewReaderSize(conn, 64*1024)
	banner, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read banner: %w", err)
	}

	c := &Client{
		conn:    conn,
		parser:  NewParser(r),
		w:       bufio.NewWriter(conn),
		pending: make(map[string]chan Event),
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "ami").Logger(),
	}
	go c.readLoop()

	if _, err := c.Action(ctx, "Login", "Username", opts.Username, "Secret", opts.Secret, "Events", "on"); err != nil {
		c.Close()
		return nil, fmt.Errorf("login: %w", err)
	}

	c.logger.Info().
		Str("addr", opts.Addr).
		Str("banner", strings.TrimSpace(banner)).
		Msg("manager connection established")
	return c, nil
}

// Events returns the channel of unsolicited events. It is closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, if it has
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Action sends an action and waits for its response
func (c *Client) Action(ctx context.Context, name string, fields ...string) (Event, error) {
	id := uuid.New().String()
	reply := make(chan Event, 1)

	c.pmu.Lock()
	c.pending[id] = reply
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, id)
		c.pmu.Unlock()
	}()

	c.wmu.Lock()
	_, err := c.w.Write(encodeAction(name, id, fields))
	if err == nil {
		err = c.w.Flush()
	}
	c.wmu.Unlock()
	if err != nil {
		return Event{}, fmt.Errorf("send %s: %w", name, err)
	}

	select {
	case resp := <-reply:
		if !strings.EqualFold(resp.Get("Response"), "Success") {
			return resp, fmt.Errorf("%w: %s: %s", ErrActionFailed, name, resp.Get("Message"))
		}
		return resp, nil
	case <-c.done:
		return Event{}, fmt.Errorf("%s: %w", name, ErrClosed)
	case <-ctx.Done():
		return Event{}, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}

// StartRecording starts a MixMonitor on channel writing both directions to file
func (c *Client) StartRecording(ctx context.Context, channel, file string) error {
	_, err := c.Action(ctx, "MixMonitor", "Channel", channel, "File", file, "Options", "b")
	return err
}

// QueueStatus requests a queue status dump; results arrive as QueueMember/QueueEntry events
func (c *Client) QueueStatus(ctx context.Context) error {
	_, err := c.Action(ctx, "QueueStatus")
	return err
}

// ShowEndpoints requests the endpoint list; results arrive as EndpointList events
func (c *Client) ShowEndpoints(ctx context.Context) error {
	_, err := c.Action(ctx, "PJSIPShowEndpoints")
	return err
}

// Close terminates the connection
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.err = reason
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		msg, err := c.parser.Next()
		if err != nil {
			c.shutdown(fmt.Errorf("read: %w", err))
			return
		}

		if msg.IsResponse() {
			c.pmu.Lock()
			reply, ok := c.pending[msg.ActionID()]
			c.pmu.Unlock()
			if ok {
				select {
				case reply <- msg:
				default:
				}
				continue
			}
			c.logger.Debug().Str("action_id", msg.ActionID()).Msg("response without pending action")
			continue
		}

		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}
