package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/store"
)

// Client is a bridge connection. It implements store.InstanceStore, so a
// remote host's instances can back a CreateContext. Calls are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	enc     *json.Encoder
	scanner *bufio.Scanner
	nextID  int64
}

var _ store.InstanceStore = (*Client)(nil)

// Dial connects to a bridge server.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to connect to %s: %w", address, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Client{conn: conn, enc: json.NewEncoder(conn), scanner: scanner}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and decodes the result into out, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params *Params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}

	c.nextID++
	req := Request{ID: c.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return errors.Wrapf(errors.Join(errors.ErrInvalidInput, err), "bridge %s params", method)
		}
		req.Params = raw
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("bridge: failed to send %s: %w", method, err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("bridge: failed to read %s response: %w", method, err)
		}
		return fmt.Errorf("bridge: connection closed waiting for %s", method)
	}
	var resp struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *ResponseError  `json:"error"`
	}
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("bridge: malformed %s response: %w", method, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("bridge: response id %d does not match request %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *Client) Read(ctx context.Context, id string) (map[string]any, error) {
	var data map[string]any
	if err := c.Call(ctx, MethodRead, &Params{ID: id}, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func (c *Client) Write(ctx context.Context, id string, data map[string]any) error {
	return c.Call(ctx, MethodWrite, &Params{ID: id, Data: data}, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.Call(ctx, MethodDelete, &Params{ID: id}, nil)
}

func (c *Client) List(ctx context.Context) ([]store.Record, error) {
	var records []RecordJSON
	if err := c.Call(ctx, MethodList, nil, &records); err != nil {
		return nil, err
	}
	out := make([]store.Record, len(records))
	for i, r := range records {
		out[i] = store.Record{ID: r.ID, Data: r.Data}
	}
	return out, nil
}
