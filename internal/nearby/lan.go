package nearby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const (
	DefaultDiscoveryPort = 47330

	defaultAnnounceEvery = 2 * time.Second
	defaultSnapshotEvery = 3 * time.Second
	defaultPeerWindow    = 10 * time.Second
)

const (
	datagramAnnounce = "announce"
	datagramJoin     = "join"
	datagramAccept   = "accept"
	datagramLeave    = "leave"
)

// lanDatagram is the discovery wire unit, one JSON object per UDP packet.
type lanDatagram struct {
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

type lanPeer struct {
	info     events.DiscoveredPeer
	addr     *net.UDPAddr
	lastSeen time.Time
}

// LANConfig carries the identity the adapter announces and the socket
// parameters. Zero durations and a zero port fall back to defaults.
type LANConfig struct {
	LocalID    string
	Name       string
	DeviceType string

	Port          int
	BindAddr      *net.UDPAddr
	BroadcastAddr *net.UDPAddr
	AnnounceEvery time.Duration
	SnapshotEvery time.Duration
	PeerWindow    time.Duration
}

// LANAdapter implements Adapter over UDP on a local network: periodic
// broadcast announces build the visible-peer table, discovery snapshots are
// emitted on a timer as full replacements, and a unicast join/accept
// handshake forms a two-device topology whose coordinator is the device
// with the lexicographically smaller id.
type LANAdapter struct {
	logger *slog.Logger

	localID    string
	name       string
	deviceType string

	bindAddr      *net.UDPAddr
	broadcastAddr *net.UDPAddr
	announceEvery time.Duration
	snapshotEvery time.Duration
	peerWindow    time.Duration

	mu          sync.Mutex
	out         chan any
	closed      bool
	initialized bool
	discovering bool
	conn        *net.UDPConn
	seen        map[string]*lanPeer
	order       []string
	joinedPeer  string
	stopBeacons context.CancelFunc
}

func NewLANAdapter(logger *slog.Logger, cfg LANConfig) *LANAdapter {
	port := cfg.Port
	if port == 0 {
		port = DefaultDiscoveryPort
	}
	bind := cfg.BindAddr
	if bind == nil {
		bind = &net.UDPAddr{IP: net.IPv4zero, Port: port}
	}
	broadcast := cfg.BroadcastAddr
	if broadcast == nil {
		broadcast = &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	}
	announceEvery := cfg.AnnounceEvery
	if announceEvery <= 0 {
		announceEvery = defaultAnnounceEvery
	}
	snapshotEvery := cfg.SnapshotEvery
	if snapshotEvery <= 0 {
		snapshotEvery = defaultSnapshotEvery
	}
	peerWindow := cfg.PeerWindow
	if peerWindow <= 0 {
		peerWindow = defaultPeerWindow
	}

	return &LANAdapter{
		logger:        nearbyLogger(logger, "lan"),
		localID:       cfg.LocalID,
		name:          cfg.Name,
		deviceType:    cfg.DeviceType,
		bindAddr:      bind,
		broadcastAddr: broadcast,
		announceEvery: announceEvery,
		snapshotEvery: snapshotEvery,
		peerWindow:    peerWindow,
		out:           make(chan any, 64),
		seen:          make(map[string]*lanPeer),
	}
}

// Supported reports whether any usable interface is up. No side effects.
func (a *LANAdapter) Supported() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		if ifc.Flags&(net.FlagBroadcast|net.FlagLoopback) != 0 {
			return true
		}
	}

	return false
}

// Initialize binds the discovery socket and starts the datagram reader.
func (a *LANAdapter) Initialize(_ context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return nil
	}
	conn, err := net.ListenUDP("udp4", a.bindAddr)
	if err != nil {
		a.mu.Unlock()
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: bind %s: %v", ErrPermissionDenied, a.bindAddr, err)
		}

		return fmt.Errorf("bind udp %s: %w", a.bindAddr, err)
	}
	a.conn = conn
	a.initialized = true
	a.mu.Unlock()

	a.logger.Info("listening", "addr", conn.LocalAddr().String())
	go a.readLoop(conn)
	a.emit(events.SupportNotice{Supported: true})

	return nil
}

// LocalAddr returns the bound discovery address, nil before Initialize.
func (a *LANAdapter) LocalAddr() *net.UDPAddr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	addr, ok := a.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}

	return addr
}

func (a *LANAdapter) StartDiscovery(ctx context.Context) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	if a.discovering {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.discovering = true
	a.stopBeacons = cancel
	a.mu.Unlock()

	go a.runBeacons(runCtx)

	return nil
}

func (a *LANAdapter) StopDiscovery(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return ErrNotInitialized
	}
	if !a.discovering {
		return nil
	}
	a.stopBeacons()
	a.stopBeacons = nil
	a.discovering = false

	return nil
}

func (a *LANAdapter) runBeacons(ctx context.Context) {
	announce := time.NewTicker(a.announceEvery)
	defer announce.Stop()
	snapshot := time.NewTicker(a.snapshotEvery)
	defer snapshot.Stop()

	a.sendAnnounce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-announce.C:
			a.sendAnnounce()
		case <-snapshot.C:
			a.emitSnapshot()
		}
	}
}

func (a *LANAdapter) sendAnnounce() {
	d := lanDatagram{Kind: datagramAnnounce, ID: a.localID, Name: a.name, DeviceType: a.deviceType}
	if err := a.sendDatagram(a.broadcastAddr, d); err != nil {
		a.logger.Debug("announce failed", "error", err)
	}
}

// emitSnapshot publishes the full current peer table and prunes entries not
// heard from within the window, so the table always matches the last
// snapshot consumers saw.
func (a *LANAdapter) emitSnapshot() {
	now := time.Now()

	a.mu.Lock()
	peers := make([]events.DiscoveredPeer, 0, len(a.order))
	kept := a.order[:0]
	for _, id := range a.order {
		p, ok := a.seen[id]
		if !ok {
			continue
		}
		if now.Sub(p.lastSeen) > a.peerWindow {
			delete(a.seen, id)
			continue
		}
		kept = append(kept, id)
		peers = append(peers, p.info)
	}
	a.order = kept
	a.mu.Unlock()

	a.emit(events.DiscoverySnapshot{Peers: peers, At: now})
}

func (a *LANAdapter) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			a.logger.Debug("reader stopped", "error", err)
			return
		}
		var d lanDatagram
		if err := json.Unmarshal(buf[:n], &d); err != nil {
			a.logger.Debug("bad datagram", "from", addr.String(), "error", err)
			continue
		}
		if d.ID == "" || d.ID == a.localID {
			continue
		}
		a.handleDatagram(d, addr)
	}
}

func (a *LANAdapter) handleDatagram(d lanDatagram, addr *net.UDPAddr) {
	switch d.Kind {
	case datagramAnnounce:
		a.handleAnnounce(d, addr)
	case datagramJoin:
		a.handleJoin(d, addr)
	case datagramAccept:
		a.handleAccept(d, addr)
	case datagramLeave:
		a.handleLeave(d)
	default:
		a.logger.Debug("unknown datagram kind", "kind", d.Kind, "from", addr.String())
	}
}

func (a *LANAdapter) handleAnnounce(d lanDatagram, addr *net.UDPAddr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.seen[d.ID]
	if !ok {
		p = &lanPeer{}
		a.seen[d.ID] = p
		a.order = append(a.order, d.ID)
	}
	p.info = events.DiscoveredPeer{ID: d.ID, Name: d.Name, DeviceType: d.DeviceType, Status: events.PeerStateAvailable}
	p.addr = addr
	p.lastSeen = time.Now()
}

func (a *LANAdapter) handleJoin(d lanDatagram, addr *net.UDPAddr) {
	a.mu.Lock()
	if a.joinedPeer != "" && a.joinedPeer != d.ID {
		a.mu.Unlock()
		a.logger.Debug("join ignored: already joined", "from", d.ID, "joined", a.joinedPeer)
		return
	}
	alreadyJoined := a.joinedPeer == d.ID
	a.joinedPeer = d.ID
	a.mu.Unlock()

	reply := lanDatagram{Kind: datagramAccept, ID: a.localID, Name: a.name, DeviceType: a.deviceType}
	if err := a.sendDatagram(addr, reply); err != nil {
		a.logger.Warn("accept send failed", "to", addr.String(), "error", err)
	}
	if alreadyJoined {
		return
	}
	a.logger.Info("peer joined", "peer", d.ID)
	a.emitTopology(d.ID, addr)
}

func (a *LANAdapter) handleAccept(d lanDatagram, addr *net.UDPAddr) {
	a.mu.Lock()
	if a.joinedPeer != "" && a.joinedPeer != d.ID {
		a.mu.Unlock()
		a.logger.Debug("accept ignored: already joined", "from", d.ID, "joined", a.joinedPeer)
		return
	}
	alreadyJoined := a.joinedPeer == d.ID
	a.joinedPeer = d.ID
	a.mu.Unlock()

	if alreadyJoined {
		return
	}
	a.logger.Info("join accepted", "peer", d.ID)
	a.emitTopology(d.ID, addr)
}

func (a *LANAdapter) handleLeave(d lanDatagram) {
	a.mu.Lock()
	if a.joinedPeer != d.ID {
		a.mu.Unlock()
		return
	}
	a.joinedPeer = ""
	a.mu.Unlock()

	a.logger.Info("peer left", "peer", d.ID)
	a.emit(events.TopologyChange{Connected: false, At: time.Now()})
}

// emitTopology announces the two-device topology. The coordinator is the
// device with the smaller id; only the non-coordinating side needs the
// coordinator's address.
func (a *LANAdapter) emitTopology(peerID string, addr *net.UDPAddr) {
	isCoordinator := a.localID < peerID
	coordAddr := ""
	if !isCoordinator && addr != nil {
		coordAddr = addr.IP.String()
	}
	a.emit(events.TopologyChange{
		Connected:       true,
		IsCoordinator:   isCoordinator,
		CoordinatorAddr: coordAddr,
		Peers:           []string{peerID},
		At:              time.Now(),
	})
}

// ConnectToPeer sends a unicast join request. A nil return means the request
// went out; the topology outcome arrives via the accept handshake.
func (a *LANAdapter) ConnectToPeer(_ context.Context, peerID string) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	p, ok := a.seen[peerID]
	if !ok {
		a.mu.Unlock()
		return ErrPeerNotFound
	}
	addr := p.addr
	a.mu.Unlock()

	d := lanDatagram{Kind: datagramJoin, ID: a.localID, Name: a.name, DeviceType: a.deviceType}
	if err := a.sendDatagram(addr, d); err != nil {
		return &ConnectError{Reason: "join request failed", Err: err}
	}
	a.logger.Info("join requested", "peer", peerID, "addr", addr.String())

	return nil
}

func (a *LANAdapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	peerID := a.joinedPeer
	var addr *net.UDPAddr
	if p, ok := a.seen[peerID]; ok {
		addr = p.addr
	}
	a.joinedPeer = ""
	a.mu.Unlock()

	if peerID == "" {
		return nil
	}
	if addr != nil {
		if err := a.sendDatagram(addr, lanDatagram{Kind: datagramLeave, ID: a.localID}); err != nil {
			a.logger.Warn("leave send failed", "peer", peerID, "error", err)
		}
	}
	a.logger.Info("left topology", "peer", peerID)
	a.emit(events.TopologyChange{Connected: false, At: time.Now()})

	return nil
}

func (a *LANAdapter) Events() <-chan any { return a.out }

func (a *LANAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if a.stopBeacons != nil {
		a.stopBeacons()
		a.stopBeacons = nil
	}
	a.discovering = false
	a.closed = true
	var err error
	if a.conn != nil {
		err = a.conn.Close()
		a.conn = nil
	}
	a.initialized = false
	close(a.out)

	return err
}

func (a *LANAdapter) emit(event any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.out <- event:
	default:
		a.logger.Warn("event dropped: stream not drained")
	}
}

func (a *LANAdapter) sendDatagram(addr *net.UDPAddr, d lanDatagram) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotInitialized
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode datagram: %w", err)
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("send datagram to %s: %w", addr, err)
	}

	return nil
}

func nearbyLogger(logger *slog.Logger, backend string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With("component", "nearby", "backend", backend)
}
