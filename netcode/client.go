package netcode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andersfylling/netcode/netcode/transport"
)

// ClientConfig is everything a user supplies to construct a Client
// (spec.md §6 "Client construction"). PlayerID is assigned out of band
// (e.g. by a lobby join flow) before the client ever dials the server.
type ClientConfig[W any, I HasTimestamp, A any, R any] struct {
	PlayerID PlayerID
	Scope    PredictionScope[W, I]
	Conn     transport.Connection

	// ExpectedTickIntervalMs, if non-zero, is cross-checked against the
	// server's handshake config within tolerance (spec.md §4.13).
	ExpectedTickIntervalMs float64
	HandshakeTimeout       time.Duration

	Log *logrus.Logger
}

// Client is the client-side half of the library: prediction, reconciliation
// and per-entity tick smoothing (spec.md §4.4-§4.6, §4.9, §6). It is not
// safe for concurrent use — callers drive it from a single goroutine, e.g. a
// select loop multiplexing an input timer, a render-frame timer and the
// connection's receive channel (spec.md §5, §9).
type Client[W any, I HasTimestamp, A any, R any] struct {
	playerID PlayerID
	conn     transport.Connection
	scope    PredictionScope[W, I]

	tickIntervalMs float64

	inputBuffer *InputBuffer[I]
	predictor   *Predictor[W, I]
	reconciler  *Reconciler[W, I]
	clock       *ClientClockEstimate

	ownerSmoother   *TickSmoother
	remoteSmoothers map[PlayerID]*TickSmoother
	// roster is every remote player known to still be connected, maintained
	// from netcode:join/netcode:leave broadcasts plus snapshot InputAcks (for
	// players who joined before this client's own handshake completed, whose
	// join broadcast it never saw). updateRemoteSmoothers iterates this
	// instead of a snapshot's InputAcks alone, since InputAcks lists only
	// players whose input was processed that tick and omits idle ones.
	roster map[PlayerID]struct{}

	localTick     Tick
	lastOwnerTick Tick
	nextActionSeq Seq

	renderWorld  W
	lastSnapshot Snapshot[W]
	hasSnapshot  bool

	// OnActionResult, if set, is called whenever a netcode:action_result
	// arrives for a previously sent action.
	OnActionResult func(ActionResult[R])
	// OnPlayerJoin / OnPlayerLeave, if set, are called for netcode:join /
	// netcode:leave broadcasts about other players.
	OnPlayerJoin  func(PlayerID)
	OnPlayerLeave func(PlayerID)

	log *logrus.Entry
}

// NewClient dials no connection itself: cfg.Conn must already be connected.
// NewClient blocks awaiting the server's netcode:config handshake before
// constructing any simulation component, per spec.md §4.13, and fails hard
// if it does not arrive within cfg.HandshakeTimeout (default
// DefaultHandshakeTimeout).
func NewClient[W any, I HasTimestamp, A any, R any](cfg ClientConfig[W, I, A, R]) (*Client[W, I, A, R], error) {
	logger := cfg.Log
	if logger == nil {
		logger = logrus.New()
	}
	entry := logger.WithFields(logrus.Fields{"system_name": "netcode_client", "player": cfg.PlayerID})

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	configCh := make(chan ConfigPayload, 1)
	configErrCh := make(chan error, 1)
	go func() {
		for {
			data, err := cfg.Conn.Recv(context.Background())
			if err != nil {
				configErrCh <- err
				return
			}
			env, err := DecodeEnvelope(data)
			if err != nil {
				continue
			}
			if env.Type != MsgConfig {
				continue
			}
			var payload ConfigPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}
			configCh <- payload
			return
		}
	}()

	var cfgPayload ConfigPayload
	select {
	case cfgPayload = <-configCh:
	case err := <-configErrCh:
		return nil, fmt.Errorf("netcode: handshake receive failed: %w", err)
	case <-time.After(timeout):
		return nil, ErrHandshakeTimeout
	}

	if cfg.ExpectedTickIntervalMs > 0 {
		diff := cfgPayload.TickIntervalMs - cfg.ExpectedTickIntervalMs
		if diff < 0 {
			diff = -diff
		}
		if diff > tickIntervalTolerance {
			return nil, fmt.Errorf("%w: client=%.4fms server=%.4fms",
				ErrTickIntervalMismatch, cfg.ExpectedTickIntervalMs, cfgPayload.TickIntervalMs)
		}
	}

	predictor := NewPredictor[W, I](cfg.Scope, cfgPayload.TickIntervalMs)
	inputBuffer := NewInputBuffer[I](entry)
	reconciler := NewReconciler[W, I](predictor, inputBuffer, cfg.PlayerID, cfgPayload.TickIntervalMs, entry)

	c := &Client[W, I, A, R]{
		playerID:        cfg.PlayerID,
		conn:            cfg.Conn,
		scope:           cfg.Scope,
		tickIntervalMs:  cfgPayload.TickIntervalMs,
		inputBuffer:     inputBuffer,
		predictor:       predictor,
		reconciler:      reconciler,
		clock:           NewClientClockEstimate(cfgPayload.TickIntervalMs),
		ownerSmoother:   NewTickSmoother(cfgPayload.TickIntervalMs, true),
		remoteSmoothers: make(map[PlayerID]*TickSmoother),
		roster:          make(map[PlayerID]struct{}),
		log:             entry,
	}
	return c, nil
}

// RequestConfig re-sends netcode:request_config, for a client created after
// the server's initial handshake broadcast (spec.md §4.13).
func (c *Client[W, I, A, R]) RequestConfig() error {
	msg, err := EncodeEnvelope(MsgRequestConfig, RequestConfigPayload{})
	if err != nil {
		return err
	}
	return c.conn.Send(msg)
}

// SendInput applies input locally (client-side prediction), buffers it for
// future reconciliation replay, advances the owner smoother by one local
// prediction tick, and sends it to the server (spec.md §4.4, §4.9).
func (c *Client[W, I, A, R]) SendInput(input I) error {
	seq := c.inputBuffer.Add(input)

	if err := c.predictor.ApplyInput(input); err != nil {
		return err
	}

	c.localTick++
	c.lastOwnerTick = c.localTick
	if pos, ok := c.predictor.LocalPlayerPosition(); ok {
		c.ownerSmoother.OnPostTick(c.localTick, Transform{X: pos.X, Y: pos.Y})
	}

	msg := InputMessage[I]{Seq: seq, Input: input, Timestamp: input.InputTimestamp()}
	data, err := EncodeEnvelope(MsgInput, msg)
	if err != nil {
		return err
	}
	return c.conn.Send(data)
}

// SendAction sends a discrete action to the server for validation and
// effect application (spec.md §4.12). Actions are not predicted locally.
// The assigned sequence number is returned so callers can match it against
// the eventual ActionResult if they don't use OnActionResult.
func (c *Client[W, I, A, R]) SendAction(action A) (Seq, error) {
	seq := c.nextActionSeq
	c.nextActionSeq++

	msg := ActionMessage[A]{Seq: seq, Action: action, ClientTimestamp: time.Now()}
	data, err := EncodeEnvelope(MsgAction, msg)
	if err != nil {
		return seq, err
	}
	return seq, c.conn.Send(data)
}

// HandleEnvelope processes one decoded server message. Callers invoke this
// from their own cooperative receive loop (see ReceiveLoop for a blocking
// convenience driver).
func (c *Client[W, I, A, R]) HandleEnvelope(env Envelope) error {
	switch env.Type {
	case MsgSnapshot:
		var snap Snapshot[W]
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			return err
		}
		return c.handleSnapshot(snap)

	case MsgConfig:
		var payload ConfigPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		c.tickIntervalMs = payload.TickIntervalMs
		return nil

	case MsgClockSync:
		var payload ClockSyncPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		resp := ClockSyncResponsePayload{ServerTimestamp: payload.ServerTimestamp, ClientTimestamp: time.Now()}
		data, err := EncodeEnvelope(MsgClockSyncResponse, resp)
		if err != nil {
			return err
		}
		return c.conn.Send(data)

	case MsgRTTUpdate:
		var payload RTTUpdatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		c.clock.ObserveRTT(payload.RTT)
		return nil

	case MsgActionResult:
		var payload ActionResult[R]
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if c.OnActionResult != nil {
			c.OnActionResult(payload)
		}
		return nil

	case MsgJoin:
		var payload JoinPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if payload.PlayerID != c.playerID {
			c.roster[payload.PlayerID] = struct{}{}
		}
		if c.OnPlayerJoin != nil {
			c.OnPlayerJoin(payload.PlayerID)
		}
		return nil

	case MsgLeave:
		var payload LeavePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		delete(c.roster, payload.PlayerID)
		delete(c.remoteSmoothers, payload.PlayerID)
		if c.OnPlayerLeave != nil {
			c.OnPlayerLeave(payload.PlayerID)
		}
		return nil

	default:
		return nil
	}
}

func (c *Client[W, I, A, R]) handleSnapshot(snap Snapshot[W]) error {
	c.clock.ObserveSnapshot(snap.Tick, snap.Timestamp)

	result, err := c.reconciler.Reconcile(snap)
	if err != nil {
		return err
	}
	c.renderWorld = result.RenderWorld
	c.lastSnapshot = snap
	c.hasSnapshot = true

	switch {
	case result.LargeRegression:
		if pos, ok := c.predictor.LocalPlayerPosition(); ok {
			c.ownerSmoother.Reset(Transform{X: pos.X, Y: pos.Y})
		}
	case result.HadPosition:
		if c.ownerSmoother.ShouldHardReset(result.PositionDelta) {
			c.ownerSmoother.Reset(Transform{X: result.PostReconcilePosition.X, Y: result.PostReconcilePosition.Y})
		} else {
			c.ownerSmoother.EaseCorrection(c.lastOwnerTick, result.PostReconcilePosition)
		}
	}

	c.updateRemoteSmoothers(snap)
	return nil
}

// updateRemoteSmoothers advances every known remote player's spectator
// TickSmoother from snap.State. It walks c.roster rather than
// snap.InputAcks: InputAcks lists only players whose input the server
// processed that tick (netcode/tick_processor.go skips idle clients
// entirely), so an idle remote player would otherwise never get
// OnPostTick called and its smoother would freeze in place even while its
// World position keeps advancing under, e.g., gravity. snap.InputAcks is
// still folded into the roster here so a player who joined before this
// client's own handshake completed - and whose netcode:join broadcast
// this client therefore never saw - is picked up the first time the
// server reports their input.
//
// The tick lag fed to UpdateAdaptiveInterpolation is measured against
// snap.Tick, the newest snapshot tick, so it reflects how old that snapshot
// is; it is not measured against the tick each spectator smoother has
// actually rendered.
func (c *Client[W, I, A, R]) updateRemoteSmoothers(snap Snapshot[W]) {
	tickLag := c.clock.TickLag(time.Now(), snap.Tick)

	for _, entry := range snap.InputAcks {
		if entry.PlayerID != c.playerID {
			c.roster[entry.PlayerID] = struct{}{}
		}
	}

	for id := range c.roster {
		pos, ok := c.scope.GetLocalPlayerPosition(snap.State, id)
		if !ok {
			continue
		}
		smoother, exists := c.remoteSmoothers[id]
		if !exists {
			smoother = NewTickSmoother(c.tickIntervalMs, false)
			c.remoteSmoothers[id] = smoother
		}
		smoother.UpdateAdaptiveInterpolation(tickLag)
		smoother.OnPostTick(snap.Tick, Transform{X: pos.X, Y: pos.Y})
	}
}

// ReceiveLoop is a convenience blocking driver: it reads one envelope at a
// time from the connection and dispatches it via HandleEnvelope until Recv
// fails or ctx is cancelled. Callers wanting finer-grained cooperative
// scheduling should call conn.Recv/HandleEnvelope directly instead.
func (c *Client[W, I, A, R]) ReceiveLoop(ctx context.Context) error {
	for {
		data, err := c.conn.Recv(ctx)
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			c.log.WithFields(logrus.Fields{"err": err}).Warn("dropping malformed envelope")
			continue
		}
		if err := c.HandleEnvelope(env); err != nil {
			c.log.WithFields(logrus.Fields{"type": env.Type, "err": err}).Warn("dropping envelope")
		}
	}
}

// GetStateForRendering returns the World to render this frame: the last
// reconciled snapshot with the local player's state overridden by the
// current prediction (spec.md §6).
func (c *Client[W, I, A, R]) GetStateForRendering() W {
	return c.renderWorld
}

// GetSmoothedTransform advances and returns id's visually smoothed
// transform. id == GetPlayerID() uses the owner smoother (correction-driven,
// no adaptive resizing); any other id uses its spectator smoother, if one
// has been observed in a snapshot yet.
func (c *Client[W, I, A, R]) GetSmoothedTransform(id PlayerID, deltaMs float64) (Transform, bool) {
	if id == c.playerID {
		return c.ownerSmoother.GetSmoothedTransform(deltaMs), true
	}
	smoother, ok := c.remoteSmoothers[id]
	if !ok {
		return Transform{}, false
	}
	return smoother.GetSmoothedTransform(deltaMs), true
}

// GetLastServerSnapshot returns the most recently received Snapshot.
func (c *Client[W, I, A, R]) GetLastServerSnapshot() (Snapshot[W], bool) {
	return c.lastSnapshot, c.hasSnapshot
}

// GetPlayerID returns the locally controlled player's id.
func (c *Client[W, I, A, R]) GetPlayerID() PlayerID { return c.playerID }

// SetSimulatedLatency configures one-way simulated network delay, when the
// underlying connection supports it (spec.md §5); it is a no-op warning
// otherwise (real transports do not simulate latency).
func (c *Client[W, I, A, R]) SetSimulatedLatency(d time.Duration) {
	type latencySetter interface{ SetSimulatedLatency(time.Duration) }
	if ls, ok := c.conn.(latencySetter); ok {
		ls.SetSimulatedLatency(d)
		return
	}
	c.log.WithFields(logrus.Fields{"latency": d}).Warn("connection does not support simulated latency")
}

// Reset clears all local prediction, reconciliation and smoothing state, as
// if the client had just completed its handshake. The next snapshot
// re-seeds everything via a large-regression-style rebase.
func (c *Client[W, I, A, R]) Reset() {
	c.inputBuffer.Clear()
	c.predictor.Reset()
	c.localTick = 0
	c.lastOwnerTick = 0
	c.ownerSmoother = NewTickSmoother(c.tickIntervalMs, true)
	c.remoteSmoothers = make(map[PlayerID]*TickSmoother)
	c.roster = make(map[PlayerID]struct{})
	c.hasSnapshot = false
}

// Destroy closes the underlying connection. The Client must not be used
// afterward.
func (c *Client[W, I, A, R]) Destroy() error {
	return c.conn.Close()
}
