package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"axiom/etc"
	"axiom/metrics"
)

// Manager owns the voice session of every guild. Operations on one guild
// are serialized; different guilds proceed independently.
type Manager struct {
	platform Platform
	cfg      Config
	deps     Deps
	log      *log.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	locks     map[string]*sync.Mutex
	occupancy map[string]*time.Timer
	closed    bool
	wg        sync.WaitGroup
}

func NewManager(
	platform Platform,
	cfg Config,
	deps Deps,
	logger *log.Logger,
) *Manager {
	if deps.NewID == nil {
		deps.NewID = etc.NewFreshID
	}
	return &Manager{
		platform:  platform,
		cfg:       cfg,
		deps:      deps,
		log:       logger,
		sessions:  make(map[string]*Session),
		locks:     make(map[string]*sync.Mutex),
		occupancy: make(map[string]*time.Timer),
	}
}

func (m *Manager) guildLock(guildID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[guildID] = l
	}
	return l
}

// Session returns the live session of a guild, or nil.
func (m *Manager) Session(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Join connects to the voice channel the user is in. Joining the channel
// the guild is already connected to returns the existing session; joining a
// different one replaces it.
func (m *Manager) Join(
	ctx context.Context,
	guildID, userID, textChannelID string,
) (*Session, error) {
	channelID, err := m.platform.UserVoiceChannel(guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("look up voice channel: %w", err)
	}
	if channelID == "" {
		return nil, ErrNoChannel
	}

	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	if m.isClosed() {
		return nil, ErrClosed
	}

	if s := m.Session(guildID); s != nil {
		if s.ChannelID() == channelID {
			return s, nil
		}
		m.log.Info("switching voice channel", "guild", guildID, "from", s.ChannelID(), "to", channelID)
		m.teardown(guildID, s)
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	transport, err := m.platform.Connect(connectCtx, guildID, channelID)
	if err != nil {
		// The platform may give up before our deadline does.
		if errors.Is(err, ErrConnectTimeout) ||
			errors.Is(connectCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrConnectTimeout
		}
		return nil, fmt.Errorf("connect voice: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if err := transport.Disconnect(); err != nil {
			m.log.Warn("voice disconnect failed", "guild", guildID, "error", err)
		}
		return nil, ErrClosed
	}
	s := newSession(transport, textChannelID, m.cfg, m.deps, m.log)
	m.sessions[guildID] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.start()
	m.log.Info("joined voice", "guild", guildID, "channel", channelID)

	return s, nil
}

func (m *Manager) Leave(guildID string) error {
	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	s := m.Session(guildID)
	if s == nil {
		return ErrNotConnected
	}
	m.teardown(guildID, s)
	m.log.Info("left voice", "guild", guildID)
	return nil
}

// teardown must be called with the guild lock held.
func (m *Manager) teardown(guildID string, s *Session) {
	m.mu.Lock()
	if m.sessions[guildID] == s {
		delete(m.sessions, guildID)
		metrics.SessionsActive.Dec()
	}
	if t, ok := m.occupancy[guildID]; ok {
		t.Stop()
		delete(m.occupancy, guildID)
	}
	m.mu.Unlock()

	if err := s.Close(); err != nil {
		m.log.Warn("voice disconnect failed", "guild", guildID, "error", err)
	}
}

// HandleTransportLost gives a dropped connection the grace window to come
// back, then tears the session down.
func (m *Manager) HandleTransportLost(guildID string) {
	s := m.Session(guildID)
	if s == nil || !s.markRecovering() {
		return
	}

	m.log.Warn("voice connection lost, trying to rejoin", "guild", guildID, "grace", m.cfg.ReconnectGrace)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ReconnectGrace)
		err := s.transport.Rejoin(ctx)
		cancel()

		lock := m.guildLock(guildID)
		lock.Lock()
		defer lock.Unlock()

		if m.Session(guildID) != s {
			return
		}
		if err == nil && s.transport.Ready() {
			s.recovered()
			m.log.Info("voice connection restored", "guild", guildID)
			return
		}

		m.log.Error("voice connection not restored, leaving", "guild", guildID, "error", err)
		m.teardown(guildID, s)
	}()
}

// HandleChannelMoved follows the bot into channelID after it was moved
// within the guild, then checks the new channel's occupancy.
func (m *Manager) HandleChannelMoved(guildID, channelID string) {
	lock := m.guildLock(guildID)
	lock.Lock()
	s := m.Session(guildID)
	if s == nil || channelID == "" || s.ChannelID() == channelID {
		lock.Unlock()
		return
	}
	m.log.Info("moved to another voice channel", "guild", guildID, "from", s.ChannelID(), "to", channelID)
	s.transport.SetChannelID(channelID)
	lock.Unlock()

	m.HandleMembershipChange(guildID)
}

// HandleMembershipChange schedules a delayed leave when the session's
// channel has no human members left.
func (m *Manager) HandleMembershipChange(guildID string) {
	s := m.Session(guildID)
	if s == nil {
		return
	}

	n, err := m.platform.HumanCount(guildID, s.ChannelID())
	if err != nil {
		m.log.Warn("failed to count channel members", "guild", guildID, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, pending := m.occupancy[guildID]
	if n > 0 {
		if pending {
			t.Stop()
			delete(m.occupancy, guildID)
		}
		return
	}
	if pending {
		return
	}

	m.log.Debug("voice channel empty, scheduling leave", "guild", guildID, "delay", m.cfg.EmptyChannelDelay)
	var timer *time.Timer
	timer = time.AfterFunc(m.cfg.EmptyChannelDelay, func() {
		m.recheckOccupancy(guildID, s, &timer)
	})
	m.occupancy[guildID] = timer
}

// recheckOccupancy runs when an empty-channel timer fires. timer is read
// under m.mu, which HandleMembershipChange holds while assigning it.
func (m *Manager) recheckOccupancy(guildID string, s *Session, timer **time.Timer) {
	lock := m.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if m.occupancy[guildID] != *timer {
		m.mu.Unlock()
		return
	}
	delete(m.occupancy, guildID)
	current := m.sessions[guildID]
	m.mu.Unlock()

	if current != s {
		return
	}

	n, err := m.platform.HumanCount(guildID, s.ChannelID())
	if err != nil {
		m.log.Warn("failed to count channel members", "guild", guildID, "error", err)
		return
	}
	if n > 0 {
		return
	}

	m.log.Info("voice channel empty, leaving", "guild", guildID)
	m.teardown(guildID, s)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close leaves every guild and waits for pending recoveries. Joins after
// Close fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	guilds := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		guilds = append(guilds, id)
	}
	m.mu.Unlock()

	for _, id := range guilds {
		if err := m.Leave(id); err != nil && !errors.Is(err, ErrNotConnected) {
			m.log.Warn("leave failed", "guild", id, "error", err)
		}
	}
	m.wg.Wait()
}
