// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/lib/clock"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Transport opens push channels. agentapi.Dialer satisfies it through
// a one-method adapter in the binary; tests substitute fakes.
type Transport interface {
	// Open connects the push channel for (endpoint, directory). The
	// returned source must unblock Next with an error once ctx is
	// canceled.
	Open(ctx context.Context, endpoint, directory string) (FrameSource, error)
}

// FrameSource is one open push channel.
type FrameSource interface {
	// Next blocks until the next frame. Any error means the channel is
	// dead and must be reopened.
	Next() ([]byte, error)
	Close() error
}

// State is a channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// StateFunc observes connection state transitions. err is non-nil only
// for failure-driven transitions to StateDisconnected.
type StateFunc func(key ChannelKey, state State, err error)

// FrameFunc receives each raw frame, synchronously and in arrival
// order, from the channel's read loop.
type FrameFunc func(key ChannelKey, data []byte)

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	Transport Transport
	// Frame receives every frame. Required.
	Frame FrameFunc
	// StateFunc, when non-nil, observes state transitions. It is
	// called from channel goroutines and must not block.
	StateFunc StateFunc
	// Clock drives reconnect waits. If nil, the system clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// InitialBackoff is the delay after the first failure, doubling
	// per consecutive failure. Zero means 1s.
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling. Zero means 30s.
	MaxBackoff time.Duration
}

// Manager owns one push channel per ChannelKey, refcounted by Acquire.
// A channel reconnects forever with exponential back-off until its
// last reference is released or the manager closes; failures are never
// fatal.
type Manager struct {
	transport      Transport
	frame          FrameFunc
	stateFunc      StateFunc
	clock          clock.Clock
	logger         *slog.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	channels map[ChannelKey]*channel
	closed   bool
}

// channel is one managed connection. state and err are guarded by the
// manager's mutex; kick has capacity one so kicks coalesce.
type channel struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
	state  State
	err    error
}

// NewManager creates a Manager.
func NewManager(config ManagerConfig) *Manager {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = defaultMaxBackoff
	}
	return &Manager{
		transport:      config.Transport,
		frame:          config.Frame,
		stateFunc:      config.StateFunc,
		clock:          clk,
		logger:         logger,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		channels:       make(map[ChannelKey]*channel),
	}
}

// Acquire subscribes to a channel, connecting it if this is the first
// reference. The returned release function is idempotent; when the
// last reference releases, the connection tears down and release
// blocks until the channel goroutine has exited, so no frame for the
// key is delivered after it returns.
func (m *Manager) Acquire(key ChannelKey) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.logger.Warn("acquire on closed manager",
			"endpoint", key.Endpoint,
			"directory", key.Directory)
		return func() {}
	}
	ch, ok := m.channels[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ch = &channel{
			cancel: cancel,
			done:   make(chan struct{}),
			kick:   make(chan struct{}, 1),
			state:  StateDisconnected,
		}
		m.channels[key] = ch
		go m.run(ctx, key, ch)
	}
	ch.refs++

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, ch) })
	}
}

func (m *Manager) release(key ChannelKey, ch *channel) {
	m.mu.Lock()
	ch.refs--
	last := ch.refs == 0 && m.channels[key] == ch
	if last {
		delete(m.channels, key)
	}
	m.mu.Unlock()
	if last {
		ch.cancel()
		<-ch.done
	}
}

// Kick asks a disconnected channel to retry now instead of waiting out
// its back-off. Wired to wake-from-suspend and network-restored
// signals. Kicking a connected channel is a no-op, and kicks never
// reset the back-off progression: only a successful open does.
func (m *Manager) Kick(key ChannelKey) {
	m.mu.Lock()
	ch, ok := m.channels[key]
	if !ok || ch.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	select {
	case ch.kick <- struct{}{}:
	default:
	}
}

// KickAll kicks every channel.
func (m *Manager) KickAll() {
	m.mu.Lock()
	keys := make([]ChannelKey, 0, len(m.channels))
	for key := range m.channels {
		keys = append(keys, key)
	}
	m.mu.Unlock()
	for _, key := range keys {
		m.Kick(key)
	}
}

// State reports a channel's connection state and, when disconnected by
// a failure, the error that caused it. Unknown keys are disconnected.
func (m *Manager) State(key ChannelKey) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[key]
	if !ok {
		return StateDisconnected, nil
	}
	return ch.state, ch.err
}

// Close tears down every channel and waits for their goroutines. The
// manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	channels := make([]*channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.channels = make(map[ChannelKey]*channel)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.cancel()
	}
	for _, ch := range channels {
		<-ch.done
	}
}

// run is the channel goroutine: connect, pump frames, reconnect with
// back-off, forever until ctx is canceled. The delay resets to the
// initial value only after a successful open; a kick bypasses the
// remaining wait but leaves the progression alone.
func (m *Manager) run(ctx context.Context, key ChannelKey, ch *channel) {
	defer close(ch.done)
	backoff := m.initialBackoff
	for {
		m.setState(key, ch, StateConnecting, nil)
		source, err := m.transport.Open(ctx, key.Endpoint, key.Directory)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(key, ch, StateDisconnected, nil)
				return
			}
			m.setState(key, ch, StateDisconnected, err)
			m.logger.Warn("channel open failed",
				"endpoint", key.Endpoint,
				"directory", key.Directory,
				"backoff", backoff,
				"error", err)
			if !m.wait(ctx, ch, backoff) {
				return
			}
			backoff = m.nextBackoff(backoff)
			continue
		}

		backoff = m.initialBackoff
		drain(ch.kick)
		m.setState(key, ch, StateConnected, nil)
		m.logger.Info("channel connected",
			"endpoint", key.Endpoint,
			"directory", key.Directory)

		readErr := m.pump(key, source)
		source.Close()
		if ctx.Err() != nil {
			m.setState(key, ch, StateDisconnected, nil)
			return
		}
		m.setState(key, ch, StateDisconnected, readErr)
		m.logger.Warn("channel lost",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"backoff", backoff,
			"error", readErr)
		if !m.wait(ctx, ch, backoff) {
			return
		}
		backoff = m.nextBackoff(backoff)
	}
}

// pump delivers frames until the source fails.
func (m *Manager) pump(key ChannelKey, source FrameSource) error {
	for {
		data, err := source.Next()
		if err != nil {
			return err
		}
		m.frame(key, data)
	}
}

// wait sleeps out a back-off delay. It returns early on a kick and
// returns false when ctx is canceled.
func (m *Manager) wait(ctx context.Context, ch *channel, backoff time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(backoff):
		return true
	case <-ch.kick:
		m.logger.Debug("reconnect kicked")
		return true
	}
}

func (m *Manager) nextBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > m.maxBackoff {
		backoff = m.maxBackoff
	}
	return backoff
}

func (m *Manager) setState(key ChannelKey, ch *channel, state State, err error) {
	m.mu.Lock()
	ch.state = state
	ch.err = err
	m.mu.Unlock()
	if m.stateFunc != nil {
		m.stateFunc(key, state, err)
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
