package netcode

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andersfylling/netcode/netcode/transport"
)

// clockSyncInterval is how often the server pings connected clients for a
// clock-sync round trip (spec.md §4.8 step 5, §4.10).
const clockSyncInterval = 1 * time.Second

// ServerConfig is everything a user supplies to construct a Server
// (spec.md §6 "Server construction").
type ServerConfig[W any, I HasTimestamp, A any, R any] struct {
	InitialWorld W
	Simulate     Simulator[W, I]
	AddPlayer    AddPlayerFunc[W]
	RemovePlayer RemovePlayerFunc[W]
	Merger       InputMerger[I]
	IdleInput    IdleInputFactory[I]

	TickIntervalMs      float64
	SnapshotHistorySize int

	// ValidateAction and ApplyActionEffect are optional; a game with no
	// discrete actions leaves both nil and never calls SendAction.
	ValidateAction     ActionValidator[W, A, R]
	ApplyActionEffect  ApplyActionEffect[W, A, R]
	InterpolationDelay time.Duration

	Log *logrus.Logger

	// OnTickError is called, if set, whenever a tick is aborted by a failed
	// or panicking Simulate (spec.md §7). The previous World is retained
	// and the tick counter is not incremented.
	OnTickError func(error)
}

// Server is the authoritative game server: it owns the World and the tick
// scheduler, and drives every server-side component from spec.md §4
// (spec.md §4.8). The zero value is not usable; construct with NewServer.
type Server[W any, I HasTimestamp, A any, R any] struct {
	mu      sync.RWMutex
	world   W
	tick    Tick
	running bool

	addPlayer    AddPlayerFunc[W]
	removePlayer RemovePlayerFunc[W]

	tickInterval   time.Duration
	tickIntervalMs float64

	snapshots       *SnapshotBuffer[W]
	inputs          *InputQueue[I]
	actions         *ActionQueue[A]
	processor       *TickProcessor[W, I]
	actionProcessor *ActionProcessor[W, A, R]
	clockSync       *ServerClockSync

	clients      map[PlayerID]transport.Connection
	clockOffsets map[PlayerID]time.Duration

	onTickError func(error)

	quitCh chan struct{}
	doneCh chan struct{}

	log *logrus.Entry
}

// NewServer constructs a Server from cfg. The loop is not started; call
// Start or StartBlocking.
func NewServer[W any, I HasTimestamp, A any, R any](cfg ServerConfig[W, I, A, R]) *Server[W, I, A, R] {
	logger := cfg.Log
	if logger == nil {
		logger = logrus.New()
	}
	entry := logger.WithField("system_name", "netcode_server")

	historySize := cfg.SnapshotHistorySize
	if historySize < 1 {
		historySize = 180
	}

	snapshots := NewSnapshotBuffer[W](historySize)

	s := &Server[W, I, A, R]{
		world:          cfg.InitialWorld,
		addPlayer:      cfg.AddPlayer,
		removePlayer:   cfg.RemovePlayer,
		tickInterval:   time.Duration(cfg.TickIntervalMs * float64(time.Millisecond)),
		tickIntervalMs: cfg.TickIntervalMs,
		snapshots:      snapshots,
		inputs:         NewInputQueue[I](),
		actions:        NewActionQueue[A](),
		processor:      NewTickProcessor[W, I](cfg.Simulate, cfg.Merger, cfg.IdleInput, cfg.TickIntervalMs, entry),
		clockSync:      NewServerClockSync(),
		clients:        make(map[PlayerID]transport.Connection),
		clockOffsets:   make(map[PlayerID]time.Duration),
		onTickError:    cfg.OnTickError,
		quitCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		log:            entry,
	}

	if cfg.ValidateAction != nil {
		lagComp := NewLagCompensator[W](snapshots, entry)
		s.actionProcessor = NewActionProcessor[W, A, R](cfg.ValidateAction, cfg.ApplyActionEffect, lagComp, cfg.InterpolationDelay, entry)
	}

	return s
}

// AddClient registers a newly connected client: it adds the player to the
// World via the user-supplied AddPlayerFunc, then sends the handshake
// config and an initial snapshot over conn. Calling AddClient twice for the
// same id is idempotent — the second call is a no-op (spec.md §4.8).
func (s *Server[W, I, A, R]) AddClient(id PlayerID, conn transport.Connection) error {
	s.mu.Lock()
	if _, exists := s.clients[id]; exists {
		s.mu.Unlock()
		return nil
	}

	newWorld, err := s.addPlayer(s.world, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.world = newWorld
	s.clients[id] = conn
	snap, hasSnap := s.snapshots.GetLatest()
	currentTick := s.tick
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"client": id}).Info("client joined")

	cfgMsg, err := EncodeEnvelope(MsgConfig, ConfigPayload{TickIntervalMs: s.tickIntervalMs})
	if err == nil {
		_ = conn.Send(cfgMsg)
	}

	if hasSnap {
		if snapMsg, err := EncodeEnvelope(MsgSnapshot, snap); err == nil {
			_ = conn.Send(snapMsg)
		}
	} else {
		// No tick has run yet; send a synthetic zero-tick snapshot so the
		// client has something to seed prediction from.
		seed := Snapshot[W]{Tick: currentTick, Timestamp: time.Now(), State: s.world}
		if snapMsg, err := EncodeEnvelope(MsgSnapshot, seed); err == nil {
			_ = conn.Send(snapMsg)
		}
	}

	s.broadcastExcept(id, MsgJoin, JoinPayload{PlayerID: id})
	return nil
}

// RemoveClient disconnects id: it removes the player from the World via
// RemovePlayerFunc, then drops the input queue, ack cursor and clock-sync
// state. If RemovePlayerFunc fails, its error is returned and the input
// queue and clock-sync state are left in place. Removing an unknown or
// already-removed id is a no-op (spec.md §4.8).
func (s *Server[W, I, A, R]) RemoveClient(id PlayerID) error {
	s.mu.Lock()
	if _, exists := s.clients[id]; !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.clients, id)
	delete(s.clockOffsets, id)

	newWorld, err := s.removePlayer(s.world, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.world = newWorld
	s.mu.Unlock()

	s.inputs.RemoveClient(id)
	s.clockSync.RemoveClient(id)

	s.log.WithFields(logrus.Fields{"client": id}).Info("client left")
	s.broadcastExcept(id, MsgLeave, LeavePayload{PlayerID: id})
	return nil
}

// HandleEnvelope dispatches one decoded client message. Callers typically
// run this from a per-connection receive loop (see ServeClient).
func (s *Server[W, I, A, R]) HandleEnvelope(id PlayerID, env Envelope) error {
	switch env.Type {
	case MsgInput:
		var payload InputMessage[I]
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		s.inputs.Enqueue(id, payload)
		return nil

	case MsgAction:
		if s.actionProcessor == nil {
			return nil
		}
		var payload ActionMessage[A]
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		s.actions.Enqueue(id, payload)
		return nil

	case MsgRequestConfig:
		s.mu.RLock()
		conn := s.clients[id]
		tickMs := s.tickIntervalMs
		s.mu.RUnlock()
		if conn == nil {
			return ErrUnknownClient
		}
		msg, err := EncodeEnvelope(MsgConfig, ConfigPayload{TickIntervalMs: tickMs})
		if err != nil {
			return err
		}
		return conn.Send(msg)

	case MsgClockSyncResponse:
		var payload ClockSyncResponsePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		s.handleClockSyncResponse(id, payload)
		return nil

	default:
		return nil
	}
}

func (s *Server[W, I, A, R]) handleClockSyncResponse(id PlayerID, payload ClockSyncResponsePayload) {
	now := time.Now()
	rtt := s.clockSync.Observe(id, payload.ServerTimestamp, now)

	// NTP-style one-way offset estimate assuming a symmetric path: the
	// server's clock at the moment the client received the ping was
	// approximately serverTimestamp + rtt/2.
	offset := payload.ServerTimestamp.Add(rtt / 2).Sub(payload.ClientTimestamp)

	s.mu.Lock()
	s.clockOffsets[id] = offset
	conn := s.clients[id]
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if msg, err := EncodeEnvelope(MsgRTTUpdate, RTTUpdatePayload{RTT: rtt}); err == nil {
		_ = conn.Send(msg)
	}
}

// ServeClient registers id/conn via AddClient, then blocks reading envelopes
// off conn and dispatching them until Recv fails or ctx is cancelled, at
// which point it calls RemoveClient. It is meant to be run in its own
// goroutine per connection.
func (s *Server[W, I, A, R]) ServeClient(ctx context.Context, id PlayerID, conn transport.Connection) error {
	if err := s.AddClient(id, conn); err != nil {
		return err
	}
	defer s.RemoveClient(id)

	for {
		data, err := conn.Recv(ctx)
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			s.log.WithFields(logrus.Fields{"client": id, "err": err}).Warn("dropping malformed envelope")
			continue
		}
		if err := s.HandleEnvelope(id, env); err != nil {
			s.log.WithFields(logrus.Fields{"client": id, "type": env.Type, "err": err}).Warn("dropping envelope")
		}
	}
}

// Start begins the tick loop on a new goroutine and returns immediately.
func (s *Server[W, I, A, R]) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	go s.runTickLoop()
	return nil
}

// StartBlocking runs the tick loop on the calling goroutine until Stop is
// called.
func (s *Server[W, I, A, R]) StartBlocking() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.runTickLoop()
	return nil
}

// Stop signals the tick loop to exit and blocks until it has.
func (s *Server[W, I, A, R]) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.quitCh)
	<-s.doneCh
}

func (s *Server[W, I, A, R]) runTickLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	syncTicker := time.NewTicker(clockSyncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-s.quitCh:
			return
		case <-ticker.C:
			// time.Ticker's channel holds at most one pending tick, so a
			// slow consumer never sees more than one fire per drained
			// value: this alone satisfies the "at most one catch-up tick
			// per callback" rule (spec.md §4.8) without extra bookkeeping.
			s.processTick()
		case <-syncTicker.C:
			s.broadcastClockSync()
		}
	}
}

func (s *Server[W, I, A, R]) processTick() {
	s.mu.Lock()
	world := s.world
	connected := make([]PlayerID, 0, len(s.clients))
	for id := range s.clients {
		connected = append(connected, id)
	}
	s.mu.Unlock()

	for _, action := range s.actions.DrainAll() {
		if s.actionProcessor == nil {
			continue
		}
		s.mu.RLock()
		offset := s.clockOffsets[action.ClientID]
		conn := s.clients[action.ClientID]
		s.mu.RUnlock()

		nextWorld, result := s.actionProcessor.ProcessOne(world, action, offset)
		world = nextWorld

		if conn != nil {
			if msg, err := EncodeEnvelope(MsgActionResult, result); err == nil {
				_ = conn.Send(msg)
			}
		}
	}

	batched := s.inputs.GetAllPendingInputsBatched()
	result, err := s.processor.Process(world, connected, batched)
	if err != nil {
		s.log.WithFields(logrus.Fields{"tick": s.tick, "err": err}).Warn("tick aborted")
		if s.onTickError != nil {
			s.onTickError(err)
		}
		return
	}

	for id, seq := range result.InputAcks {
		s.inputs.Acknowledge(id, seq)
	}

	s.mu.Lock()
	s.world = result.World
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	snap := Snapshot[W]{
		Tick:      tick,
		Timestamp: time.Now(),
		State:     result.World,
		InputAcks: NewAckList(result.InputAcks),
	}
	if err := s.snapshots.Add(snap); err != nil {
		s.log.WithFields(logrus.Fields{"tick": tick, "err": err}).Error("snapshot buffer rejected tick")
	}

	s.broadcast(MsgSnapshot, snap)
}

func (s *Server[W, I, A, R]) broadcastClockSync() {
	now := time.Now()
	s.broadcast(MsgClockSync, ClockSyncPayload{ServerTimestamp: now})
}

func (s *Server[W, I, A, R]) broadcast(t MessageType, payload any) {
	msg, err := EncodeEnvelope(t, payload)
	if err != nil {
		s.log.WithFields(logrus.Fields{"type": t, "err": err}).Error("failed to encode broadcast")
		return
	}

	s.mu.RLock()
	conns := make([]transport.Connection, 0, len(s.clients))
	for _, conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			s.log.WithFields(logrus.Fields{"type": t, "err": err}).Warn("send failed, client will be dropped by its receive loop")
		}
	}
}

func (s *Server[W, I, A, R]) broadcastExcept(except PlayerID, t MessageType, payload any) {
	msg, err := EncodeEnvelope(t, payload)
	if err != nil {
		return
	}

	s.mu.RLock()
	conns := make(map[PlayerID]transport.Connection, len(s.clients))
	for id, conn := range s.clients {
		if id != except {
			conns[id] = conn
		}
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Send(msg)
	}
}

// World returns the current authoritative World.
func (s *Server[W, I, A, R]) World() W {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world
}

// Tick returns the current server tick.
func (s *Server[W, I, A, R]) Tick() Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// IsRunning reports whether the tick loop is currently active.
func (s *Server[W, I, A, R]) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Clients returns the currently connected client ids, in no particular
// order.
func (s *Server[W, I, A, R]) Clients() []PlayerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]PlayerID, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotAtTimestamp returns the retained snapshot closest to t.
func (s *Server[W, I, A, R]) SnapshotAtTimestamp(t time.Time) (Snapshot[W], bool) {
	return s.snapshots.GetAtTimestamp(t)
}
