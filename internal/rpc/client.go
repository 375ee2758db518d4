package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/steveyegge/atlas/internal/cache"
)

// Client talks to a running daemon.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
	readTimeout time.Duration
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string, dialTimeout, readTimeout time.Duration) *Client {
	return &Client{socketPath: socketPath, dialTimeout: dialTimeout, readTimeout: readTimeout}
}

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Call sends one request and decodes the response into result. Connection
// failures wrap ErrUnreachable.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	line, err := json.Marshal(Request{Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close()

	var deadline time.Time
	if c.readTimeout > 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
	}

	if _, err := conn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	reader := bufio.NewReader(conn)
	resp, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var env ErrorResponse
	if err := json.Unmarshal(resp, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Error != "" {
		return &RemoteError{Method: method, Message: env.Error}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// IsUnreachable reports whether err means no daemon answered.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Find calls find.
func (c *Client) Find(ctx context.Context, keyword string) ([]cache.Hit, error) {
	var res FindResult
	if err := c.Call(ctx, MethodFind, FindParams{Keyword: keyword}, &res); err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// Scope calls scope.
func (c *Client) Scope(ctx context.Context, paths []string) ([]cache.FileScope, error) {
	var res ScopeResult
	if err := c.Call(ctx, MethodScope, ScopeParams{Paths: paths}, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// Status calls status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.Call(ctx, MethodStatus, struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Notify calls notify.
func (c *Client) Notify(ctx context.Context, p *NotifyParams) (*NotifyAck, error) {
	var ack NotifyAck
	if err := c.Call(ctx, MethodNotify, p, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
