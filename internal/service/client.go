package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	gloom "github.com/jcalabro/gloomd"
	"github.com/jcalabro/gloomd/internal/codec"
)

const (
	dialTimeout = 5 * time.Second

	// responseReadTimeout covers the server's read and write timeouts
	// plus handler time.
	responseReadTimeout = 45 * time.Second

	// maxResponseBytes bounds one response. Dumps of large filters are
	// the biggest replies.
	maxResponseBytes = 1 << 32
)

// Error is returned when the server answers ok=false. It unwraps to the
// sentinel matching Code, so errors.Is(err, gloom.ErrNotFound) holds on
// the client side.
type Error struct {
	Action  string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gloomd error on %q (%s): %s", e.Action, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return sentinelFor(e.Code)
}

// Client sends requests to a gloomd socket. Each call opens a new
// connection.
type Client struct {
	network string
	address string

	// Debug, if set, receives every response in CBOR diagnostic notation.
	Debug io.Writer
}

// NewClient returns a client for the socket at address.
func NewClient(network, address string) *Client {
	return &Client{network: network, address: address}
}

// Call sends action with fields and decodes the response data into
// result, if result is non-nil. fields must not contain "action".
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.address, err)
	}
	if c.Debug != nil {
		c.debug(action, response)
	}

	if !response.OK {
		return &Error{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) debug(action string, response *Response) {
	data, err := codec.Marshal(response)
	if err == nil {
		var notation string
		if notation, err = codec.Diagnose(data); err == nil {
			fmt.Fprintf(c.Debug, "%s: %s\n", action, notation)
			return
		}
	}
	fmt.Fprintf(c.Debug, "%s: undecodable response: %v\n", action, err)
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the server sees EOF after the request.
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		closer.CloseWrite()
	}

	if _, ok := ctx.Deadline(); !ok {
		conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	}
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseBytes)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// Init creates name. Parameters left nil take the server's defaults, in
// order: a seed requires an error rate, which requires a capacity.
func (c *Client) Init(ctx context.Context, name string, capacity *uint64, errorRate *float64, seed *uint64) (gloom.Info, error) {
	fields := map[string]any{"name": name}
	if capacity != nil {
		fields["capacity"] = *capacity
	}
	if errorRate != nil {
		fields["error_rate"] = *errorRate
	}
	if seed != nil {
		fields["seed"] = *seed
	}
	var info gloom.Info
	err := c.Call(ctx, ActionInit, fields, &info)
	return info, err
}

// InitWith creates name with explicit parameters.
func (c *Client) InitWith(ctx context.Context, name string, p gloom.Params) (gloom.Info, error) {
	return c.Init(ctx, name, &p.Capacity, &p.ErrorRate, &p.Seed)
}

func (c *Client) Add(ctx context.Context, name string, value []byte) error {
	return c.Call(ctx, ActionAdd, map[string]any{"name": name, "value": value}, nil)
}

// AddMany adds all values under one lock on the server.
func (c *Client) AddMany(ctx context.Context, name string, values [][]byte) error {
	return c.Call(ctx, ActionAddMany, map[string]any{"name": name, "values": values}, nil)
}

// Exists reports whether value might be in name.
func (c *Client) Exists(ctx context.Context, name string, value []byte) (bool, error) {
	var flag int
	if err := c.Call(ctx, ActionExists, map[string]any{"name": name, "value": value}, &flag); err != nil {
		return false, err
	}
	return flag == 1, nil
}

func (c *Client) ExistsMany(ctx context.Context, name string, values [][]byte) ([]bool, error) {
	var flags []int
	if err := c.Call(ctx, ActionExistsMany, map[string]any{"name": name, "values": values}, &flags); err != nil {
		return nil, err
	}
	present := make([]bool, len(flags))
	for i, f := range flags {
		present[i] = f == 1
	}
	return present, nil
}

// Merge ORs source into target on the server.
func (c *Client) Merge(ctx context.Context, target, source string) error {
	return c.Call(ctx, ActionMerge, map[string]any{"target": target, "source": source}, nil)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.Call(ctx, ActionDelete, map[string]any{"name": name}, nil)
}

func (c *Client) Info(ctx context.Context, name string) (gloom.Info, error) {
	var info gloom.Info
	err := c.Call(ctx, ActionInfo, map[string]any{"name": name}, &info)
	return info, err
}

// List returns the sorted names of all filters.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Call(ctx, ActionList, nil, &names)
	return names, err
}

// Dump returns name serialized and zstd-compressed. The bytes can be
// handed back to Restore unchanged.
func (c *Client) Dump(ctx context.Context, name string) ([]byte, error) {
	var response DumpResponse
	if err := c.Call(ctx, ActionDump, map[string]any{"name": name}, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (c *Client) Restore(ctx context.Context, name string, data []byte, replace bool) (gloom.Info, error) {
	var info gloom.Info
	err := c.Call(ctx, ActionRestore, map[string]any{"name": name, "data": data, "replace": replace}, &info)
	return info, err
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var status StatusResponse
	err := c.Call(ctx, ActionStatus, nil, &status)
	return status, err
}

// DecodeDump decompresses and deserializes bytes returned by Dump.
func DecodeDump(data []byte) (*gloom.Filter, error) {
	raw, err := decompressDump(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gloom.ErrInvalidData, err)
	}
	return gloom.UnmarshalBinary(raw)
}
