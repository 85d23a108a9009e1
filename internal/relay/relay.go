package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/envelope"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const (
	DefaultChatPort = 47331

	defaultSettleDelay  = 1500 * time.Millisecond
	defaultDialTimeout  = 6 * time.Second
	defaultWriteTimeout = 5 * time.Second
	maxLineBytes        = 256 * 1024
)

var ErrNotConnected = errors.New("relay: socket not open")

// SendError reports a write fault on an open channel. Send failures never
// tear the topology down; they are returned to the caller only.
type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay: send failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("relay: send failed: %s", e.Reason)
}

func (e *SendError) Unwrap() error { return e.Err }

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
)

// Relay owns the application byte stream layered on an established topology.
// The coordinator listens on the chat port; every other device dials the
// coordinator with bounded retries. Inbound lines are decoded and published
// as chat messages; channel lifecycle is published on the socket topic.
//
// At most one channel is open at a time. A second inbound connection is
// accepted and its reader serviced, but the registered writer never changes.
type Relay struct {
	logger *slog.Logger
	bus    bus.MessageBus
	codec  *envelope.Codec

	port         int
	settleDelay  time.Duration
	dialTimeout  time.Duration
	writeTimeout time.Duration
	retryDelays  []time.Duration

	mu         sync.Mutex
	state      State
	epoch      uint64
	active     bool
	activeRole events.SocketRole
	activeAddr string
	cancelTask context.CancelFunc
	listener   net.Listener
	conn       net.Conn
	extras     map[net.Conn]struct{}

	writeMu sync.Mutex
}

func NewRelay(logger *slog.Logger, b bus.MessageBus, codec *envelope.Codec, port int, settleDelay time.Duration) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if port == 0 {
		port = DefaultChatPort
	}
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}

	return &Relay{
		logger:       logger.With("component", "relay"),
		bus:          b,
		codec:        codec,
		port:         port,
		settleDelay:  settleDelay,
		dialTimeout:  defaultDialTimeout,
		writeTimeout: defaultWriteTimeout,
		retryDelays:  []time.Duration{0, time.Second, 2 * time.Second},
		state:        StateIdle,
		extras:       make(map[net.Conn]struct{}),
	}
}

// Start subscribes the relay to topology changes. The context bounds every
// task the relay spawns; cancelling it tears the channel down.
func (r *Relay) Start(ctx context.Context) {
	sub := r.bus.Subscribe(events.TopicTopology)

	go func() {
		defer r.bus.Unsubscribe(sub, events.TopicTopology)
		for {
			select {
			case <-ctx.Done():
				r.stop("shutdown")
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				change, ok := raw.(events.TopologyChange)
				if !ok {
					continue
				}
				r.handleTopology(ctx, change)
			}
		}
	}()
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Stop tears the channel down unconditionally, mid-handshake included.
func (r *Relay) Stop() {
	r.stop("stopped")
}

func (r *Relay) handleTopology(ctx context.Context, change events.TopologyChange) {
	if !change.Connected {
		r.stop("topology lost")
		return
	}

	role := events.SocketRoleConnecting
	if change.IsCoordinator {
		role = events.SocketRoleListening
	}
	if role == events.SocketRoleConnecting && change.CoordinatorAddr == "" {
		r.logger.Warn("topology without coordinator address, cannot connect")
		return
	}

	r.mu.Lock()
	if r.active && r.activeRole == role && r.activeAddr == change.CoordinatorAddr {
		state := r.state
		r.mu.Unlock()
		r.logger.Debug("topology unchanged", "state", string(state))
		return
	}
	if r.active {
		wasOpen := r.state == StateOpen
		r.teardownLocked()
		if wasOpen {
			r.publishDisconnected("topology changed")
		}
	}
	r.epoch++
	epoch := r.epoch
	taskCtx, cancel := context.WithCancel(ctx)
	r.active = true
	r.activeRole = role
	r.activeAddr = change.CoordinatorAddr
	r.cancelTask = cancel
	r.mu.Unlock()

	if role == events.SocketRoleListening {
		go r.runListener(taskCtx, epoch)
	} else {
		go r.runDialer(taskCtx, epoch, change.CoordinatorAddr)
	}
}

// runListener binds the chat port after the settle delay and accepts until
// the task is cancelled. The bind gets a single attempt; failure is terminal
// for this topology.
func (r *Relay) runListener(ctx context.Context, epoch uint64) {
	if !sleepWithContext(ctx, r.settleDelay) {
		return
	}

	addr := ":" + strconv.Itoa(r.port)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		r.logger.Error("listen failed", "addr", addr, "error", err)
		r.finishFailed(epoch, addr, 1, err)
		return
	}

	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		_ = listener.Close()
		return
	}
	r.listener = listener
	r.state = StateListening
	r.mu.Unlock()
	r.logger.Info("listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Debug("accept loop ended", "error", err)
			}
			return
		}
		r.adoptInbound(ctx, epoch, conn)
	}
}

func (r *Relay) adoptInbound(ctx context.Context, epoch uint64, conn net.Conn) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	if r.conn == nil {
		r.conn = conn
		r.state = StateOpen
		r.publishConnected(events.SocketRoleListening, conn)
		r.mu.Unlock()
		go r.readLoop(ctx, epoch, conn, true)
		return
	}
	r.extras[conn] = struct{}{}
	r.mu.Unlock()
	r.logger.Warn("extra inbound connection, reader only", "remote", conn.RemoteAddr().String())
	go r.readLoop(ctx, epoch, conn, false)
}

// runDialer connects to the coordinator after the settle delay, retrying on
// a fixed backoff schedule before reporting a terminal failure.
func (r *Relay) runDialer(ctx context.Context, epoch uint64, host string) {
	if !sleepWithContext(ctx, r.settleDelay) {
		return
	}

	target := net.JoinHostPort(host, strconv.Itoa(r.port))
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	r.state = StateConnecting
	r.mu.Unlock()

	var lastErr error
	for attempt, delay := range r.retryDelays {
		if delay > 0 && !sleepWithContext(ctx, delay) {
			return
		}
		dialer := net.Dialer{Timeout: r.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			lastErr = err
			r.logger.Warn("connect attempt failed", "target", target, "attempt", attempt+1, "error", err)
			continue
		}

		r.mu.Lock()
		if epoch != r.epoch {
			r.mu.Unlock()
			_ = conn.Close()
			return
		}
		r.conn = conn
		r.state = StateOpen
		r.publishConnected(events.SocketRoleConnecting, conn)
		r.mu.Unlock()
		go r.readLoop(ctx, epoch, conn, true)
		return
	}

	if ctx.Err() != nil {
		return
	}
	r.logger.Error("connection attempts exhausted", "target", target, "attempts", len(r.retryDelays), "error", lastErr)
	r.finishFailed(epoch, target, len(r.retryDelays), lastErr)
}

// readLoop frames inbound bytes by line and publishes each decoded message.
// Message publishes and channel teardown share the relay mutex, so no
// message is ever published after the channel's disconnect event.
func (r *Relay) readLoop(ctx context.Context, epoch uint64, conn net.Conn, registered bool) {
	remote := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)

		r.mu.Lock()
		if epoch != r.epoch || (registered && r.conn != conn) {
			r.mu.Unlock()
			break
		}
		msg := r.codec.Decode(buf, remote, time.Now())
		r.bus.Publish(events.TopicMessage, msg)
		r.mu.Unlock()
	}

	readErr := scanner.Err()
	if !registered {
		r.mu.Lock()
		delete(r.extras, conn)
		r.mu.Unlock()
		_ = conn.Close()
		r.logger.Debug("extra reader closed", "remote", remote, "error", readErr)
		return
	}
	r.handleChannelClosed(ctx, epoch, conn, readErr)
}

// handleChannelClosed reacts to the registered connection dying on its own.
// A coordinator keeps listening for a replacement; a client returns to Idle.
func (r *Relay) handleChannelClosed(ctx context.Context, epoch uint64, conn net.Conn, readErr error) {
	r.mu.Lock()
	if epoch != r.epoch || r.conn != conn {
		r.mu.Unlock()
		return
	}
	_ = conn.Close()
	r.conn = nil

	reason := "peer closed the stream"
	if readErr != nil {
		reason = "read failed: " + readErr.Error()
	}
	if ctx.Err() != nil {
		reason = "shutdown"
	}

	if r.activeRole == events.SocketRoleListening && r.listener != nil {
		r.state = StateListening
	} else {
		r.epoch++
		if r.cancelTask != nil {
			r.cancelTask()
			r.cancelTask = nil
		}
		r.active = false
		r.activeRole = ""
		r.activeAddr = ""
		r.state = StateIdle
	}
	r.publishDisconnected(reason)
	r.mu.Unlock()

	r.logger.Info("socket closed", "reason", reason)
}

// Send writes one framed line to the registered connection. The caller is
// responsible for the trailing newline; envelope.Encode provides it.
func (r *Relay) Send(line []byte) error {
	r.mu.Lock()
	if r.state != StateOpen || r.conn == nil {
		r.mu.Unlock()
		return ErrNotConnected
	}
	conn := r.conn
	r.mu.Unlock()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	if _, err := conn.Write(line); err != nil {
		return &SendError{Reason: "write failed", Err: err}
	}

	return nil
}

func (r *Relay) stop(reason string) {
	r.mu.Lock()
	if !r.active && r.state == StateIdle {
		r.mu.Unlock()
		return
	}
	wasOpen := r.state == StateOpen
	r.state = StateClosing
	r.teardownLocked()
	if wasOpen {
		r.publishDisconnected(reason)
	}
	r.mu.Unlock()

	r.logger.Info("relay stopped", "reason", reason, "was_open", wasOpen)
}

// teardownLocked cancels the running task and closes every socket. The epoch
// bump invalidates whatever those tasks still have in flight.
func (r *Relay) teardownLocked() {
	r.epoch++
	if r.cancelTask != nil {
		r.cancelTask()
		r.cancelTask = nil
	}
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	for c := range r.extras {
		_ = c.Close()
		delete(r.extras, c)
	}
	r.active = false
	r.activeRole = ""
	r.activeAddr = ""
	r.state = StateIdle
}

// finishFailed reports the terminal connect failure for the current epoch
// and returns the relay to Idle.
func (r *Relay) finishFailed(epoch uint64, addr string, attempts int, err error) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	r.teardownLocked()
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	r.bus.Publish(events.TopicSocket, events.SocketConnectFailed{
		Addr:     addr,
		Attempts: attempts,
		Err:      errText,
		At:       time.Now(),
	})
	r.mu.Unlock()
}

func (r *Relay) publishConnected(role events.SocketRole, conn net.Conn) {
	r.logger.Info("socket open", "role", string(role), "remote", conn.RemoteAddr().String())
	r.bus.Publish(events.TopicSocket, events.SocketConnected{
		Role:       role,
		LocalAddr:  conn.LocalAddr().String(),
		RemoteAddr: conn.RemoteAddr().String(),
		At:         time.Now(),
	})
}

func (r *Relay) publishDisconnected(reason string) {
	r.bus.Publish(events.TopicSocket, events.SocketDisconnected{Reason: reason, At: time.Now()})
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
