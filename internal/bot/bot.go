// Package bot assembles the core contexts into one root object: config,
// app info, keystore, packet correlation, socket, events, cache and the
// login machine. Everything long-running hangs off a Bot.
package bot

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nanoim/botcore/internal/auth"
	"github.com/nanoim/botcore/internal/cache"
	"github.com/nanoim/botcore/internal/config"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/event"
	"github.com/nanoim/botcore/internal/keystore"
	"github.com/nanoim/botcore/internal/logging"
	"github.com/nanoim/botcore/internal/login"
	"github.com/nanoim/botcore/internal/metrics"
	"github.com/nanoim/botcore/internal/network"
	"github.com/nanoim/botcore/internal/oicq"
	"github.com/nanoim/botcore/internal/packet"
	"github.com/nanoim/botcore/internal/recovery"
	"github.com/nanoim/botcore/internal/service"
	"github.com/nanoim/botcore/internal/sign"
)

// Bot is the root context. It implements service.Dispatcher for typed
// dispatch and network.Handler for inbound frames.
type Bot struct {
	cfg   *config.Config
	app   *auth.AppInfo
	store *keystore.Store
	log   *slog.Logger
	met   *metrics.Metrics

	codec   *packet.Codec
	wtCodec *oicq.Codec
	signer  sign.Provider
	packets *packet.Context
	socket  *network.SocketContext
	bus     *event.Bus
	cache   *cache.Cache
	login   *login.Machine

	online   atomic.Bool
	running  atomic.Bool
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var (
	_ service.Dispatcher = (*Bot)(nil)
	_ network.Handler    = (*Bot)(nil)
)

// New builds a bot from configuration, loading the keystore from the
// configured path when one exists there.
func New(cfg *config.Config) (*Bot, error) {
	store, err := keystore.Load(cfg.Bot.KeystorePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load keystore: %w", err)
		}
		store = keystore.New()
	}
	return NewWithStore(cfg, store)
}

// NewWithStore builds a bot around an existing keystore.
func NewWithStore(cfg *config.Config, store *keystore.Store) (*Bot, error) {
	app := auth.AppInfoFor(cfg.Protocol())
	if app == nil {
		return nil, errs.Build("bot: protocol %s has no app info", cfg.Bot.Protocol)
	}

	logger := logging.NewLogger(cfg.Bot.LogLevel, cfg.Bot.LogFormat)

	b := &Bot{
		cfg:   cfg,
		app:   app,
		store: store,
		log:   logger.With(slog.String("component", "bot")),
		met:   metrics.Default(),
		bus:   event.NewBus(),
		cache: cache.New(),
	}

	switch {
	case cfg.Sign.URL != "":
		b.signer = sign.NewHTTPProvider(cfg.Sign.URL, logger)
	case app.Protocol.IsAndroid():
		b.signer = sign.AndroidProvider{}
	default:
		b.signer = sign.NoopProvider{}
	}

	wtCodec, err := oicq.NewCodec()
	if err != nil {
		return nil, err
	}
	b.wtCodec = wtCodec

	b.codec = &packet.Codec{App: app, Store: store}
	b.socket = network.NewSocketContext(b.serverList(), b, logger)
	b.packets = packet.NewContext(b.codec, b.socket, b.signer, logger)
	b.login = login.NewMachine(b, wtCodec, b.bus, logger)
	return b, nil
}

// serverList resolves the endpoints to dial, preferring IPv6 when asked.
func (b *Bot) serverList() []string {
	if len(b.cfg.Network.Servers) > 0 {
		return b.cfg.Network.Servers
	}
	if b.cfg.Network.UseIPv6Network {
		return []string{network.DefaultServers[1], network.DefaultServers[0]}
	}
	return nil
}

// App implements service.Context.
func (b *Bot) App() *auth.AppInfo { return b.app }

// Store implements service.Context.
func (b *Bot) Store() *keystore.Store { return b.store }

// Cache returns the session cache.
func (b *Bot) Cache() *cache.Cache { return b.cache }

// Events returns the event bus.
func (b *Bot) Events() *event.Bus { return b.bus }

// Login returns the login machine.
func (b *Bot) Login() *login.Machine { return b.login }

// Online reports whether a registered session is live.
func (b *Bot) Online() bool { return b.online.Load() }

// SendPacket implements service.Dispatcher.
func (b *Bot) SendPacket(ctx context.Context, command string, body []byte, protocol int32, encrypt packet.EncryptType) (*packet.SsoPacket, error) {
	return b.packets.SendPacket(ctx, command, body, protocol, encrypt)
}

// Connect dials the server. Background tasks are started separately by
// Start so tests can drive the socket without them.
func (b *Bot) Connect(ctx context.Context) error {
	return b.socket.Connect(ctx)
}

// Start launches the reconnect monitor and the heartbeat. Idempotent
// start is an error, matching the socket's connect semantics.
func (b *Bot) Start() error {
	if !b.running.CompareAndSwap(false, true) {
		return errs.Build("bot: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	monitor := network.NewMonitor(b.socket, b.reconnect, b.cfg.Network.AutoReconnect, b.log)
	heartbeat := network.NewHeartbeat(b.socket, b.beat, b.log)

	b.wg.Add(3)
	recovery.Go(b.log, "monitor", func() {
		defer b.wg.Done()
		monitor.Run(ctx)
	})
	recovery.Go(b.log, "heartbeat", func() {
		defer b.wg.Done()
		heartbeat.Run(ctx)
	})
	// Subscribe before Start returns so an event published right after
	// Start cannot slip past the watcher.
	sub := b.bus.Subscribe()
	recovery.Go(b.log, "session-watch", func() {
		defer b.wg.Done()
		b.watchSession(ctx, sub)
	})

	b.log.Info("bot started",
		slog.String("protocol", b.app.Protocol.String()),
		slog.Uint64("uin", b.store.Uin()))
	return nil
}

// watchSession flips the online flag on login success events.
func (b *Bot) watchSession(ctx context.Context, sub *event.Subscription) {
	if sub == nil {
		return
	}
	defer sub.Close()
	for {
		ev, err := event.Recv[login.SuccessEvent](ctx, sub)
		if err != nil {
			return
		}
		b.online.Store(true)
		b.met.SetOnline(true)
		if ev.Uid != "" {
			b.cache.PutUser(ev.Uin, ev.Uid)
		}
	}
}

// beat fires one Alive round trip. The heartbeat runner skips it while
// disconnected; skip it while logged out too.
func (b *Bot) beat(ctx context.Context) error {
	if !b.online.Load() {
		return nil
	}
	_, err := service.Send[service.AliveRequest, service.AliveResponse](ctx, b, service.AliveRequest{})
	b.met.RecordHeartbeat(err)
	return err
}

// reconnect re-dials and, when enabled and a session is stored, refreshes
// the ticket set so the bot comes back online without operator action.
func (b *Bot) reconnect(ctx context.Context) error {
	if err := b.socket.Connect(ctx); err != nil {
		return err
	}
	if b.cfg.Network.AutoReLogin && b.store.HasSession() {
		err := b.login.ResumeSession(ctx)
		b.met.RecordResume(err == nil)
		if err != nil {
			b.log.Warn("session resume failed", slog.Any("error", err))
		}
	}
	return nil
}

// HandleFrame implements network.Handler. The socket strips the length
// prefix; the service parser wants the whole frame, so restore it.
func (b *Bot) HandleFrame(body []byte) {
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)+4))
	copy(frame[4:], body)

	p, err := b.codec.ParseService(frame)
	if err != nil {
		b.log.Warn("dropping undecodable frame", slog.Any("error", err))
		return
	}
	if push := b.packets.DispatchPacket(p); push != nil {
		b.routePush(push)
	}
}

// routePush parses a server-initiated packet through its registered
// service and publishes the typed value on the bus.
func (b *Bot) routePush(p *packet.SsoPacket) {
	entry := service.LookupCommand(p.Command, b.app.Protocol)
	if entry == nil {
		b.met.RecordPushDropped()
		b.log.Debug("push with no registered service", slog.String("command", p.Command))
		return
	}
	v, err := entry.Parse(p.Data, b)
	if err != nil {
		b.log.Warn("push parse failed",
			slog.String("command", p.Command),
			slog.Any("error", err))
		return
	}
	if !entry.SuppressLog {
		b.log.Debug("push routed", slog.String("command", p.Command))
	}
	b.met.RecordPush(p.Command)
	b.bus.Publish(v)
}

// HandleDisconnect implements network.Handler. Pending requests fail fast
// and the session goes offline; the monitor owns getting it back.
func (b *Bot) HandleDisconnect(err error) {
	b.online.Store(false)
	b.met.SetOnline(false)
	b.packets.FailPending()
}

// Close shuts everything down: background tasks are cancelled, the socket
// closed, waiters failed and the bus drained. Tasks hold the Bot through
// closures; cancellation, not weak references, breaks the cycle.
func (b *Bot) Close() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.socket.Disconnect()
		b.packets.FailPending()
		b.bus.Close()
		b.wg.Wait()
		b.running.Store(false)
		b.log.Info("bot stopped")
	})
}

// SaveKeystore persists the keystore to the configured path.
func (b *Bot) SaveKeystore() error {
	return b.store.Save(b.cfg.Bot.KeystorePath)
}
