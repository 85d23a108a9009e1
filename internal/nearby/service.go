package nearby

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

// Service drives one Adapter and republishes its event stream on the bus,
// one topic per event kind. Producers stay decoupled from every consumer:
// the directory, the relay, notifications, and diagnostics all subscribe to
// the same topics.
type Service struct {
	logger  *slog.Logger
	adapter Adapter
	bus     bus.MessageBus
}

func NewService(logger *slog.Logger, b bus.MessageBus, adapter Adapter) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		logger:  logger.With("component", "nearby"),
		adapter: adapter,
		bus:     b,
	}
}

// Start checks support, initializes the adapter, starts the event pump, and
// begins discovery. An unsupported platform is reported on the bus and via
// ErrUnsupportedPlatform; the caller decides whether to continue degraded.
func (s *Service) Start(ctx context.Context) error {
	if !s.adapter.Supported() {
		s.logger.Warn("nearby transport unsupported on this platform")
		s.bus.Publish(events.TopicSupport, events.SupportNotice{Supported: false, Reason: "platform capability missing"})

		return ErrUnsupportedPlatform
	}

	if err := s.adapter.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize nearby adapter: %w", err)
	}

	go s.pump(ctx)

	if err := s.adapter.StartDiscovery(ctx); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}
	s.logger.Info("discovery started")

	return nil
}

func (s *Service) pump(ctx context.Context) {
	in := s.adapter.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			s.publish(raw)
		}
	}
}

func (s *Service) publish(raw any) {
	switch ev := raw.(type) {
	case events.SupportNotice:
		s.bus.Publish(events.TopicSupport, ev)
	case events.DiscoverySnapshot:
		s.logger.Debug("discovery snapshot", "peers", len(ev.Peers))
		s.bus.Publish(events.TopicDiscovery, ev)
	case events.TopologyChange:
		s.logger.Info("topology changed", "connected", ev.Connected, "coordinator", ev.IsCoordinator, "addr", ev.CoordinatorAddr)
		s.bus.Publish(events.TopicTopology, ev)
	default:
		s.logger.Debug("unrecognized adapter event", "type", fmt.Sprintf("%T", raw))
	}
}

// ConnectToPeer forwards a join request to the adapter.
func (s *Service) ConnectToPeer(ctx context.Context, peerID string) error {
	return s.adapter.ConnectToPeer(ctx, peerID)
}

// Disconnect tears down the current topology.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.adapter.Disconnect(ctx)
}

// StopDiscovery pauses discovery without dropping an established topology.
func (s *Service) StopDiscovery(ctx context.Context) error {
	return s.adapter.StopDiscovery(ctx)
}

// Close releases the adapter and its sockets; the event stream closes and
// the pump exits with it.
func (s *Service) Close() error {
	return s.adapter.Close()
}
