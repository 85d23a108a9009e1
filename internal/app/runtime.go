package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/bus"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/chat"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/config"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/diag"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/envelope"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/logging"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/nearby"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/notify"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/persistence"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/platform"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/relay"
)

// Options tweaks runtime assembly for a single invocation without touching
// the persisted config.
type Options struct {
	// ForceAdapter overrides the configured nearby transport when non-empty.
	ForceAdapter config.AdapterType
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths    Paths
	Config   config.AppConfig
	Identity domain.Identity

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	PeerRepo    *persistence.PeerRepo
	MessageRepo *persistence.MessageRepo
	WriterQueue *persistence.WriterQueue

	Directory  *domain.PeerDirectory
	MessageLog *domain.MessageLog

	Nearby    *nearby.Service
	Relay     *relay.Relay
	Messenger *chat.Messenger
	Diag      *diag.Server

	instanceLock platform.InstanceLock
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}

	// One process per data dir: a second instance would race this one on the
	// database and the chat port.
	instanceLock, err := platform.AcquireInstanceLock(paths.RootDir)
	if err != nil {
		if errors.Is(err, platform.ErrDataDirInUse) {
			return nil, fmt.Errorf("another %s instance is already using %s", DisplayName, paths.RootDir)
		}
		if errors.Is(err, platform.ErrInstanceLockUnsupported) {
			slog.Warn("instance lock unsupported, continuing without it")
		} else {
			return nil, fmt.Errorf("acquire instance lock: %w", err)
		}
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		if instanceLock != nil {
			_ = instanceLock.Release()
		}

		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:          ctx,
		cancel:       cancel,
		Paths:        paths,
		Config:       cfg,
		instanceLock: instanceLock,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		_ = rt.Close()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting beacon runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	identity, err := domain.LoadOrCreateIdentity(paths.IdentityFile, resolveDisplayName(cfg))
	if err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.Identity = identity
	slog.Info("device identity", "id", identity.ID, "name", identity.Name)

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.DB = db
	rt.PeerRepo = persistence.NewPeerRepo(db)
	rt.MessageRepo = persistence.NewMessageRepo(db)

	directory := domain.NewPeerDirectory()
	directory.SetExpiry(cfg.Network.PeerExpiry())
	messageLog := domain.NewMessageLog()
	if err := domain.LoadStoresFromRepositories(ctx, directory, messageLog, rt.PeerRepo, rt.MessageRepo); err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.Directory = directory
	rt.MessageLog = messageLog

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	directory.Start(ctx, b)
	messageLog.Start(ctx, b)

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue
	domain.StartPersistenceProjection(ctx, b, writerQueue, directory, rt.PeerRepo, rt.MessageRepo)

	codec := envelope.NewCodec(identity.ID)

	adapter, err := buildAdapter(cfg, opts, identity, logMgr)
	if err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.Nearby = nearby.NewService(logMgr.Logger("nearby"), b, adapter)

	rt.Relay = relay.NewRelay(logMgr.Logger("relay"), b, codec, cfg.Network.ChatPort, cfg.Network.SettleDelay())
	rt.Relay.Start(ctx)

	rt.Messenger = chat.NewMessenger(logMgr.Logger("chat"), b, rt.Relay, codec, identity)
	rt.Messenger.Start(ctx)

	notificationService := NewNotificationService(b, rt.CurrentConfig, notify.NewDesktopSender(logMgr.Logger("notify"), DisplayName), logMgr.Logger("app.notifications"))
	notificationService.Start(ctx)

	if cfg.Diagnostics.Enabled {
		diagServer := diag.NewServer(logMgr.Logger("diag"), b, directory, messageLog, cfg.Diagnostics.ListenAddr)
		if err := diagServer.Start(ctx); err != nil {
			slog.Warn("start diagnostics server", "error", err)
		} else {
			rt.Diag = diagServer
		}
	}

	// Transport failures leave the app running on stored data: peers and
	// history stay browsable even when the radio is unavailable.
	if err := rt.Nearby.Start(ctx); err != nil {
		if errors.Is(err, nearby.ErrUnsupportedPlatform) {
			slog.Warn("nearby transport unsupported, continuing without discovery")
		} else {
			slog.Error("start nearby transport", "error", err)
		}
	}

	return rt, nil
}

func buildAdapter(cfg config.AppConfig, opts Options, identity domain.Identity, logMgr *logging.Manager) (nearby.Adapter, error) {
	kind := cfg.Network.Adapter
	if opts.ForceAdapter != "" {
		kind = opts.ForceAdapter
	}

	switch kind {
	case config.AdapterLAN:
		return nearby.NewLANAdapter(logMgr.Logger("nearby"), nearby.LANConfig{
			LocalID:    identity.ID,
			Name:       identity.Name,
			DeviceType: cfg.Identity.DeviceType,
			Port:       cfg.Network.DiscoveryPort,
		}), nil
	case config.AdapterSimulated:
		return nearby.NewSimulatedAdapter(simulatedRoster(), 2*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown nearby adapter: %q", kind)
	}
}

// simulatedRoster is the fixture peer set replayed by the simulated adapter
// in demo mode.
func simulatedRoster() []events.DiscoveredPeer {
	return []events.DiscoveredPeer{
		{ID: "sim-alpha", Name: "Field Tablet", DeviceType: "tablet", Status: events.PeerStateAvailable},
		{ID: "sim-bravo", Name: "Rescue Team 2", DeviceType: "phone", Status: events.PeerStateAvailable},
		{ID: "sim-charlie", Name: "Supply Truck", DeviceType: "handheld", Status: events.PeerStateAvailable},
	}
}

func resolveDisplayName(cfg config.AppConfig) string {
	name := strings.TrimSpace(cfg.Identity.DisplayName)
	if name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return strings.TrimSpace(host)
	}

	return "Beacon user"
}

// CurrentConfig returns a copy of the active configuration.
func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

// SaveAndApplyConfig validates, persists, and applies a new configuration.
// Logging and notification settings apply immediately; network and adapter
// changes take effect on the next start.
func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()

		return err
	}
	r.Config = cfg
	r.mu.Unlock()

	return r.LogManager.Configure(cfg.Logging, r.Paths.LogFile)
}

// ClearDatabase wipes stored peers and messages and resets the in-memory
// stores.
func (r *Runtime) ClearDatabase() error {
	if r.DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}

	if r.Directory != nil {
		r.Directory.Reset()
	}
	if r.MessageLog != nil {
		r.MessageLog.Reset()
	}
	slog.Info("database cleared")

	return nil
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.Relay != nil {
		r.Relay.Stop()
	}
	if r.Nearby != nil {
		_ = r.Nearby.Close()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	if r.instanceLock != nil {
		_ = r.instanceLock.Release()
		r.instanceLock = nil
	}

	return nil
}
