/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mae implements the client side of the element manager alarm
// stream: a long-lived TCP or TLS session that reassembles marker-delimited
// frames, classifies them, and republishes them as typed events with
// automatic reconnection.
package mae

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/carverauto/maestream/pkg/logger"
)

const (
	readBufferSize  = 4096
	eventBufferSize = 256

	// resyncSettleDelay gives the element manager time to finish its session
	// setup before the replay command goes out; several firmware revisions
	// ignore commands sent earlier.
	resyncSettleDelay = 500 * time.Millisecond
)

// ClientState is the session lifecycle state.
type ClientState int

const (
	// StateDisconnected means no session is running.
	StateDisconnected ClientState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the session is live and reading frames.
	StateConnected
	// StateReconnecting means the session waits out a backoff delay.
	StateReconnecting
	// StateGivenUp means reconnection attempts are exhausted. Terminal
	// until Start is called again.
	StateGivenUp
)

// String returns the state name used in logs.
func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Client maintains one session against an element manager endpoint. It owns
// the connection, the frame reassembly and the reconnection loop, and
// publishes everything of interest on its event channel in wire order.
type Client struct {
	config *Config
	policy ReconnectPolicy
	logger logger.Logger

	events chan Event

	mu      sync.Mutex
	state   ClientState
	conn    *Transport
	cancel  context.CancelFunc
	running bool

	wg sync.WaitGroup
}

// NewClient validates cfg, applies its defaults, and returns a client ready
// to Start. A nil log falls back to a quiet test logger.
func NewClient(cfg *Config, log logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Client{
		config: cfg,
		policy: cfg.Policy(),
		logger: log,
		events: make(chan Event, eventBufferSize),
		state:  StateDisconnected,
	}, nil
}

// Start launches the session loop in the background. It returns
// ErrAlreadyStarted while a previous session is still running; a client
// whose session ended, given up included, can be started again.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)

	go c.run(runCtx)

	return nil
}

// Stop ends the session, closes the connection and waits for the loop to
// exit. Safe to call at any state, repeatedly included.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		_ = conn.Close()
	}

	c.wg.Wait()
	c.transition(StateDisconnected)
}

// State returns the current session state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Events returns the session event stream. The channel is never closed;
// consumers stop reading once they observe EventMaxAttemptsReached or after
// calling Stop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// RequestResync asks the element manager to replay every active alarm. The
// replay arrives on the event stream bracketed by EventSyncStart and
// EventSyncEnd.
func (c *Client) RequestResync() error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	// The resync token goes out as raw bytes; the element manager does not
	// expect framing on the inbound direction.
	if _, err := conn.Write([]byte(ResyncCommand)); err != nil {
		return fmt.Errorf("send resync command: %w", err)
	}

	c.logger.Debug().Str("endpoint", c.config.Addr()).Msg("Requested full alarm replay")

	return nil
}

// run is the session loop: dial, read until the connection dies, then retry
// per policy. It exits on context cancellation, on exhausted retries, or
// after a single failure when reconnection is disabled.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.markStopped()

	attempt := 0

	for {
		select {
		case <-ctx.Done():
			c.transition(StateDisconnected)
			return
		default:
		}

		c.transition(StateConnecting)

		conn, err := Dial(ctx, c.config, c.logger)
		if err != nil {
			if ctx.Err() != nil {
				c.transition(StateDisconnected)
				return
			}

			c.logger.Error().Err(err).Str("endpoint", c.config.Addr()).Msg("Connection attempt failed")
			c.publish(ctx, Event{Kind: EventError, Err: err})

			if !c.scheduleReconnect(ctx, &attempt, false) {
				return
			}

			continue
		}

		c.setConn(conn)
		attempt = 0

		c.transition(StateConnected)
		c.publish(ctx, Event{Kind: EventConnected})
		c.logger.Info().
			Str("endpoint", c.config.Addr()).
			Str("remote_addr", conn.RemoteAddr()).
			Msg("Connected to element manager")

		if c.config.SyncOnConnect {
			c.wg.Add(1)

			go func() {
				defer c.wg.Done()
				c.requestInitialSync(ctx)
			}()
		}

		err = c.readLoop(ctx, conn)
		c.dropConn(conn)

		if ctx.Err() != nil {
			c.transition(StateDisconnected)
			return
		}

		c.logger.Warn().Err(err).Str("endpoint", c.config.Addr()).Msg("Connection lost")
		c.publish(ctx, Event{Kind: EventDisconnected})

		if err != nil && !errors.Is(err, io.EOF) {
			c.publish(ctx, Event{Kind: EventError, Err: err})
		}

		if !c.scheduleReconnect(ctx, &attempt, true) {
			return
		}
	}
}

// readLoop feeds connection reads through the framer until the connection
// fails. Frames complete in a chunk are handled before the chunk's read
// error, keeping event order aligned with byte order.
func (c *Client) readLoop(ctx context.Context, conn *Transport) error {
	framer := NewFramer(c.config.MaxBufferBytes)
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)

		if n > 0 {
			frames, ferr := framer.Push(buf[:n])

			for _, frame := range frames {
				c.handleFrame(ctx, frame)
			}

			if ferr != nil {
				c.logger.Warn().Err(ferr).Msg("Frame reassembly buffer overflowed")
				c.publish(ctx, Event{Kind: EventError, Err: ferr})
			}
		}

		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handleFrame classifies one frame and publishes the matching event.
func (c *Client) handleFrame(ctx context.Context, frame RawFrame) {
	msg, err := ParseMessage(frame)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Dropping unparseable frame")
		c.publish(ctx, Event{Kind: EventError, Err: err})

		return
	}

	if msg == nil {
		c.logger.Trace().Msg("Dropping empty frame")
		return
	}

	switch msg.Kind {
	case MessageHandshake:
		c.logger.Trace().Str("peer_time", msg.Timestamp).Msg("Handshake received")
		c.publish(ctx, Event{Kind: EventHandshake, Timestamp: msg.Timestamp})
	case MessageSyncStart:
		c.logger.Debug().Msg("Active alarm replay started")
		c.publish(ctx, Event{Kind: EventSyncStart})
	case MessageSyncEnd:
		c.logger.Debug().Msg("Active alarm replay finished")
		c.publish(ctx, Event{Kind: EventSyncEnd})
	case MessageAlarm:
		c.publish(ctx, Event{Kind: EventAlarmReceived, Fields: msg.Fields})
	}
}

// scheduleReconnect decides whether the loop tries again and, when it does,
// waits out the backoff delay. False means the loop must stop.
// disconnectedSent tells it whether the caller already published the
// disconnected event for this failure.
func (c *Client) scheduleReconnect(ctx context.Context, attempt *int, disconnectedSent bool) bool {
	if c.config.DisableReconnect {
		if !disconnectedSent {
			c.publish(ctx, Event{Kind: EventDisconnected})
		}

		c.transition(StateDisconnected)
		c.logger.Info().Str("endpoint", c.config.Addr()).Msg("Automatic reconnection disabled, staying down")

		return false
	}

	if !c.policy.ShouldRetry(*attempt) {
		c.transition(StateGivenUp)
		c.publish(ctx, Event{Kind: EventMaxAttemptsReached})
		c.logger.Error().
			Int("attempts", *attempt).
			Str("endpoint", c.config.Addr()).
			Msg("Exhausted reconnection attempts, giving up")

		return false
	}

	c.transition(StateReconnecting)

	delay := c.policy.NextDelay(*attempt)
	*attempt++

	c.logger.Info().
		Int("attempt", *attempt).
		Dur("delay", delay).
		Str("endpoint", c.config.Addr()).
		Msg("Reconnecting after delay")

	select {
	case <-ctx.Done():
		c.transition(StateDisconnected)
		return false
	case <-time.After(delay):
		return true
	}
}

// requestInitialSync sends the replay command once the session has settled.
func (c *Client) requestInitialSync(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(resyncSettleDelay):
	}

	if err := c.RequestResync(); err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Warn().Err(err).Msg("Initial alarm replay request failed")
	}
}

// publish delivers ev in order, blocking until the consumer accepts it or
// the session context ends.
func (c *Client) publish(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Client) transition(next ClientState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev != next {
		c.logger.Debug().
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("Session state changed")
	}
}

func (c *Client) setConn(conn *Transport) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn detaches conn under the lock and closes it outside, tolerating a
// concurrent Stop that already detached it.
func (c *Client) dropConn(conn *Transport) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	_ = conn.Close()
}

func (c *Client) markStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}
