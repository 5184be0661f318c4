// Package bridge drives a simulator running behind a socket bridge process.
// Each call is one framed msgpack request followed by one framed response.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"

	"adaptive-signal-rl/internal/sim"
)

const (
	endpointStart       = "start"
	endpointStep        = "step"
	endpointVehicles    = "edge_vehicle_count"
	endpointHalted      = "edge_halting_number"
	endpointWaiting     = "edge_waiting_time"
	endpointGetPhase    = "tl_get_phase"
	endpointSetPhase    = "tl_set_phase"
	endpointStop        = "stop"
	defaultNetwork      = "unix"
	defaultDialTimeout  = 10 * time.Second
	defaultRequestLimit = 30 * time.Second
)

var ErrRemote = errors.New("bridge error")

type Options struct {
	Network     string // "unix" or "tcp"
	Address     string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Client implements sim.Simulator over a bridge connection. It does not
// reconnect: a failed call leaves the client unusable.
type Client struct {
	opts   Options
	logger logr.Logger
	conn   net.Conn
	now    float64
	closed bool

	// Dial may be replaced before Start.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ sim.Simulator = (*Client)(nil)

func New(opts Options, logger logr.Logger) *Client {
	if opts.Network == "" {
		opts.Network = defaultNetwork
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaultRequestLimit
	}
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return &Client{opts: opts, logger: logger, Dial: dialer.DialContext}
}

func (c *Client) Start(ctx context.Context, cfg sim.StartConfig) error {
	if c.conn != nil {
		return sim.ErrAlreadyStarted
	}
	conn, err := c.Dial(ctx, c.opts.Network, c.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to bridge %s %s: %w", c.opts.Network, c.opts.Address, err)
	}
	c.conn = conn
	c.closed = false
	c.logger.Info("connected to simulator bridge", "network", c.opts.Network, "address", c.opts.Address)

	resp, err := c.call(endpointStart, map[string]any{"cmd": cfg.Command()})
	if err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	c.now = resp.SimTime
	return nil
}

func (c *Client) call(endpoint string, params map[string]any) (response, error) {
	switch {
	case c.closed:
		return response{}, sim.ErrClosed
	case c.conn == nil:
		return response{}, sim.ErrNotStarted
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.opts.IOTimeout)); err != nil {
		return response{}, fmt.Errorf("%s: %w", endpoint, err)
	}
	if err := writeFrame(c.conn, request{Endpoint: endpoint, Params: params}); err != nil {
		return response{}, fmt.Errorf("%s: send: %w", endpoint, err)
	}
	var resp response
	if err := readFrame(c.conn, &resp); err != nil {
		return response{}, fmt.Errorf("%s: receive: %w", endpoint, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("%s: %w: %s", endpoint, ErrRemote, resp.Error)
	}
	return resp, nil
}

func (c *Client) Step() error {
	resp, err := c.call(endpointStep, nil)
	if err != nil {
		return err
	}
	c.now = resp.SimTime
	return nil
}

// Time returns the simulation time reported by the last start or step.
func (c *Client) Time() (float64, error) {
	switch {
	case c.closed:
		return 0, sim.ErrClosed
	case c.conn == nil:
		return 0, sim.ErrNotStarted
	}
	return c.now, nil
}

func (c *Client) VehicleCount(edgeID string) (int, error) {
	resp, err := c.call(endpointVehicles, map[string]any{"edge": edgeID})
	return resp.Count, err
}

func (c *Client) HaltedCount(edgeID string) (int, error) {
	resp, err := c.call(endpointHalted, map[string]any{"edge": edgeID})
	return resp.Count, err
}

func (c *Client) WaitingTime(edgeID string) (float64, error) {
	resp, err := c.call(endpointWaiting, map[string]any{"edge": edgeID})
	return resp.Wait, err
}

func (c *Client) Phase(tlsID string) (int, error) {
	resp, err := c.call(endpointGetPhase, map[string]any{"id": tlsID})
	return resp.Phase, err
}

func (c *Client) SetPhase(tlsID string, index int) error {
	_, err := c.call(endpointSetPhase, map[string]any{"id": tlsID, "index": index})
	return err
}

// Close asks the bridge to stop the simulation and drops the connection.
func (c *Client) Close() error {
	if c.conn == nil || c.closed {
		return nil
	}
	var stopErr error
	if _, err := c.call(endpointStop, nil); err != nil {
		stopErr = err
		c.logger.Error(err, "failed to stop simulation cleanly")
	}
	c.closed = true
	err := c.conn.Close()
	c.conn = nil
	return errors.Join(stopErr, err)
}
