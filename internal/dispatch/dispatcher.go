// Package dispatch routes protocol messages between sessions and room
// state. It owns the handshake gate, the per-type message handlers, and
// the tailored broadcast fan-out that keeps the secret word out of
// non-drawer updates.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/sketch/internal/game/registry"
	"github.com/cory-johannsen/sketch/internal/game/room"
	"github.com/cory-johannsen/sketch/internal/protocol"
	"github.com/cory-johannsen/sketch/internal/session"
)

// ErrNotConnected is reported when a session sends any message before the
// handshake.
var ErrNotConnected = errors.New("handshake required before this operation")

// errPermission is reported when a round advance is requested by someone
// who is neither the owner nor the drawer.
var errPermission = errors.New("only the owner or drawer may advance the round")

// Dispatcher connects sessions to the room registry. One instance serves
// every listener; all methods are safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	logger   *zap.Logger
	sessOpts session.Options

	mu       sync.RWMutex
	sessions map[string]*session.Session // session ID → session
	byPlayer map[string]*session.Session // player ID → session
}

// New creates a Dispatcher over the given registry.
//
// Precondition: reg and logger must be non-nil.
func New(reg *registry.Registry, sessOpts session.Options, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logger:   logger,
		sessOpts: sessOpts,
		sessions: make(map[string]*session.Session),
		byPlayer: make(map[string]*session.Session),
	}
}

// SessionCount returns the number of live sessions.
func (d *Dispatcher) SessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// HandleTransport owns one connection from accept to close: it wraps the
// transport in a session, runs the read loop, and tears everything down
// (including the implicit room leave) when the connection ends.
//
// Postcondition: the session is closed and unregistered when this returns.
func (d *Dispatcher) HandleTransport(ctx context.Context, t session.Transport) error {
	sess := session.New(t, d.logger, d.sessOpts)

	d.mu.Lock()
	d.sessions[sess.ID()] = sess
	d.mu.Unlock()

	defer d.teardown(sess)

	for {
		msg, err := sess.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || sess.IsClosed() {
				return nil
			}
			return err
		}
		d.route(sess, msg)
	}
}

// teardown unregisters a session and performs the implicit leave for any
// room it occupied. Safe against double invocation.
func (d *Dispatcher) teardown(sess *session.Session) {
	d.mu.Lock()
	if _, ok := d.sessions[sess.ID()]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.sessions, sess.ID())
	if pid := sess.PlayerID(); pid != "" {
		delete(d.byPlayer, pid)
	}
	d.mu.Unlock()

	if roomID := sess.RoomID(); roomID != "" {
		d.leaveRoom(sess, roomID)
	}
	_ = sess.Close()

	d.logger.Info("session ended",
		zap.String("session_id", sess.ID()),
		zap.String("player_id", sess.PlayerID()),
	)
}

// route dispatches one inbound message. Handler errors are converted into
// an error response to the originating session and never escape the loop.
func (d *Dispatcher) route(sess *session.Session, msg *protocol.Message) {
	if msg.Type != protocol.TypeConnect && sess.PlayerID() == "" {
		d.sendError(sess, ErrNotConnected)
		return
	}

	var err error
	switch msg.Type {
	case protocol.TypeConnect:
		err = d.handleConnect(sess, msg)
	case protocol.TypeDisconnect:
		_ = sess.Close()
	case protocol.TypeCreateRoom:
		err = d.handleCreateRoom(sess)
	case protocol.TypeListRooms:
		err = d.handleListRooms(sess)
	case protocol.TypeJoinRoom:
		err = d.handleJoinRoom(sess, msg)
	case protocol.TypeLeaveRoom:
		err = d.handleLeaveRoom(sess)
	case protocol.TypeKickPlayer:
		err = d.handleKickPlayer(sess, msg)
	case protocol.TypeSetGameConfig:
		err = d.handleSetGameConfig(sess, msg)
	case protocol.TypeSetReady:
		err = d.handleSetReady(sess, msg)
	case protocol.TypeStartGame:
		err = d.handleStartGame(sess)
	case protocol.TypeNextRound:
		err = d.handleNextRound(sess)
	case protocol.TypeEndGame:
		err = d.handleEndGame(sess)
	case protocol.TypeDraw:
		err = d.handleDraw(sess, msg)
	case protocol.TypeChat, protocol.TypeGuess:
		err = d.handleChat(sess, msg)
	case protocol.TypeGiveScore:
		err = d.handleGiveScore(sess, msg)
	default:
		d.logger.Debug("unrecognized message type",
			zap.String("type", msg.Type),
			zap.String("player_id", sess.PlayerID()),
		)
	}

	if err != nil {
		d.sendError(sess, err)
	}
}

// handleConnect performs the handshake: binds the username to a generated
// player ID and unlocks the rest of the protocol for this session.
func (d *Dispatcher) handleConnect(sess *session.Session, msg *protocol.Message) error {
	username := msg.Text("username")
	if username == "" {
		username = msg.Text("name")
	}
	if username == "" {
		username = "Player-" + sess.ID()[:8]
	}

	playerID := uuid.NewString()
	if !sess.BindPlayer(playerID, username) {
		return fmt.Errorf("session %s already completed the handshake", sess.ID())
	}

	d.mu.Lock()
	d.byPlayer[playerID] = sess
	d.mu.Unlock()

	d.logger.Info("player connected",
		zap.String("player_id", playerID),
		zap.String("username", username),
		zap.String("remote", sess.RemoteAddr()),
	)

	return sess.Send(protocol.New(protocol.TypeConnectResponse, map[string]any{
		"success":   true,
		"player_id": playerID,
		"message":   "welcome " + username,
	}))
}

func (d *Dispatcher) handleCreateRoom(sess *session.Session) error {
	if sess.RoomID() != "" {
		d.leaveRoom(sess, sess.RoomID())
	}

	roomID := d.registry.Create()
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		return r.Join(sess.PlayerID(), sess.PlayerName())
	})
	if err != nil {
		d.registry.RemoveIfEmpty(roomID)
		return err
	}
	sess.SetRoomID(roomID)

	if err := sess.Send(protocol.New(protocol.TypeAck, map[string]any{
		"ok":      true,
		"event":   protocol.TypeCreateRoom,
		"room_id": roomID,
	})); err != nil {
		return err
	}
	d.broadcastRoomUpdate(roomID)
	d.broadcastRoomsUpdate()
	return nil
}

func (d *Dispatcher) handleListRooms(sess *session.Session) error {
	return sess.Send(protocol.New(protocol.TypeAck, map[string]any{
		"ok":    true,
		"event": protocol.TypeListRooms,
		"rooms": roomListData(d.registry.Snapshot()),
	}))
}

func (d *Dispatcher) handleJoinRoom(sess *session.Session, msg *protocol.Message) error {
	if sess.RoomID() != "" {
		d.leaveRoom(sess, sess.RoomID())
	}

	roomID, _ := d.registry.GetOrCreate(msg.Text("room_id"))
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		return r.Join(sess.PlayerID(), sess.PlayerName())
	})
	if err != nil {
		d.registry.RemoveIfEmpty(roomID)
		return err
	}
	sess.SetRoomID(roomID)

	if err := sess.Send(protocol.New(protocol.TypeAck, map[string]any{
		"ok":      true,
		"event":   protocol.TypeJoinRoom,
		"room_id": roomID,
	})); err != nil {
		return err
	}
	d.broadcastRoomUpdate(roomID)
	d.broadcastRoomsUpdate()
	return nil
}

func (d *Dispatcher) handleLeaveRoom(sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID != "" {
		d.leaveRoom(sess, roomID)
	}
	return sess.Send(protocol.New(protocol.TypeAck, map[string]any{
		"ok":    true,
		"event": protocol.TypeLeaveRoom,
	}))
}

// leaveRoom removes the player from the room and fans out the resulting
// state changes. Used by the explicit leave, kicks, room switches, and the
// implicit leave on disconnect.
func (d *Dispatcher) leaveRoom(sess *session.Session, roomID string) {
	var (
		res       room.LeaveResult
		standings []room.Standing
	)
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		res = r.Leave(sess.PlayerID())
		if res.GameEnded {
			standings = r.Standings()
		}
		return nil
	})
	sess.SetRoomID("")
	if err != nil {
		return
	}

	if res.GameEnded {
		d.broadcastToRoom(roomID, protocol.New(protocol.TypeGameResult, map[string]any{
			"ranking": standingsData(standings),
		}), "")
	}
	if res.RoundAdvanced {
		d.announceRound(roomID, protocol.TypeNextRound, res.Round)
	}
	d.broadcastRoomUpdate(roomID)
	if d.registry.RemoveIfEmpty(roomID) {
		d.broadcastRoomsUpdate()
	}
}

func (d *Dispatcher) handleKickPlayer(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}
	targetID := msg.Text("player_id")

	var (
		res       room.LeaveResult
		standings []room.Standing
	)
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		var kickErr error
		res, kickErr = r.Kick(sess.PlayerID(), targetID)
		if res.GameEnded {
			standings = r.Standings()
		}
		return kickErr
	})
	if err != nil {
		return err
	}

	d.mu.RLock()
	target := d.byPlayer[targetID]
	d.mu.RUnlock()
	if target != nil {
		target.SetRoomID("")
		_ = target.Send(protocol.New(protocol.TypeEvent, map[string]any{
			"type":    protocol.TypeKickPlayer,
			"room_id": roomID,
		}))
	}

	if res.GameEnded {
		d.broadcastToRoom(roomID, protocol.New(protocol.TypeGameResult, map[string]any{
			"ranking": standingsData(standings),
		}), "")
	}
	if res.RoundAdvanced {
		d.announceRound(roomID, protocol.TypeNextRound, res.Round)
	}
	d.broadcastRoomUpdate(roomID)
	return nil
}

func (d *Dispatcher) handleSetGameConfig(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}

	maxRounds := msg.Int("max_rounds")
	roundSeconds := msg.Int("round_time")
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		return r.Configure(sess.PlayerID(), maxRounds, roundSeconds)
	})
	if err != nil {
		return err
	}

	if err := sess.Send(protocol.New(protocol.TypeAck, map[string]any{
		"ok":    true,
		"event": protocol.TypeSetGameConfig,
	})); err != nil {
		return err
	}
	d.broadcastRoomUpdate(roomID)
	return nil
}

func (d *Dispatcher) handleSetReady(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		return r.SetReady(sess.PlayerID(), msg.Bool("ready"))
	})
	if err != nil {
		return err
	}
	d.broadcastRoomUpdate(roomID)
	return nil
}

func (d *Dispatcher) handleStartGame(sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}

	var info room.RoundInfo
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		var startErr error
		info, startErr = r.Start(sess.PlayerID())
		return startErr
	})
	if err != nil {
		return err
	}

	d.broadcastRoomUpdate(roomID)
	d.announceRound(roomID, protocol.TypeStartGame, info)
	return nil
}

func (d *Dispatcher) handleNextRound(sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}

	var (
		info      room.RoundInfo
		standings []room.Standing
	)
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		pid := sess.PlayerID()
		if pid != r.OwnerID() && pid != r.DrawerID() {
			return errPermission
		}
		var advErr error
		info, advErr = r.AdvanceRound()
		if advErr != nil {
			return advErr
		}
		if info.Final {
			standings = r.Standings()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if info.Final {
		d.broadcastToRoom(roomID, protocol.New(protocol.TypeGameResult, map[string]any{
			"ranking": standingsData(standings),
		}), "")
		d.broadcastRoomUpdate(roomID)
		return nil
	}

	d.broadcastRoomUpdate(roomID)
	d.announceRound(roomID, protocol.TypeNextRound, info)
	return nil
}

func (d *Dispatcher) handleEndGame(sess *session.Session) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}

	var standings []room.Standing
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		if err := r.End(sess.PlayerID()); err != nil {
			return err
		}
		standings = r.Standings()
		return nil
	})
	if err != nil {
		return err
	}

	d.broadcastToRoom(roomID, protocol.New(protocol.TypeGameResult, map[string]any{
		"ranking": standingsData(standings),
	}), "")
	d.broadcastRoomUpdate(roomID)
	return nil
}

// handleDraw relays freehand drawing verbatim to everyone else in the
// room. Draw traffic is never interpreted as game state.
func (d *Dispatcher) handleDraw(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}
	d.broadcastToRoom(roomID, protocol.New(protocol.TypeDrawSync, map[string]any{
		"by":   sess.PlayerID(),
		"data": msg.Data,
	}), sess.PlayerID())
	return nil
}

// handleChat intercepts guesses before relaying chat. A correct guess is
// announced without its text so the answer never reaches the chat log.
func (d *Dispatcher) handleChat(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}

	text := msg.Text("message")
	if text == "" {
		text = msg.Text("word")
	}
	if text == "" {
		text = msg.Text("text")
	}

	var out room.GuessOutcome
	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		var guessErr error
		out, guessErr = r.RecordGuess(sess.PlayerID(), text)
		return guessErr
	})
	if err != nil {
		return err
	}

	if out.Correct {
		if out.Awarded {
			d.broadcastRoomUpdate(roomID)
			d.broadcastToRoom(roomID, protocol.New(protocol.TypeEvent, map[string]any{
				"type":        "guess_correct",
				"player_id":   sess.PlayerID(),
				"player_name": sess.PlayerName(),
			}), "")
		}
		// Correct guesses, awarded or repeated, are kept out of chat.
		return sess.Send(protocol.New(protocol.TypeGuessResult, map[string]any{
			"correct": true,
			"word":    out.Word,
		}))
	}

	d.broadcastToRoom(roomID, protocol.New(protocol.TypeChat, map[string]any{
		"by":      sess.PlayerID(),
		"by_name": sess.PlayerName(),
		"text":    text,
	}), "")
	return nil
}

func (d *Dispatcher) handleGiveScore(sess *session.Session, msg *protocol.Message) error {
	roomID := sess.RoomID()
	if roomID == "" {
		return room.ErrNotInRoom
	}
	targetID := msg.Text("player_id")
	points := msg.Int("score")

	err := d.registry.WithRoom(roomID, func(r *room.Room) error {
		return r.GivePoints(sess.PlayerID(), targetID, points)
	})
	if err != nil {
		return err
	}

	d.broadcastRoomUpdate(roomID)
	d.broadcastToRoom(roomID, protocol.New(protocol.TypeEvent, map[string]any{
		"type":      protocol.TypeGiveScore,
		"player_id": targetID,
		"score":     points,
	}), "")
	return nil
}

// announceRound broadcasts the round transition event. The secret word is
// deliberately absent; it travels only inside the drawer's room_update.
func (d *Dispatcher) announceRound(roomID, event string, info room.RoundInfo) {
	d.broadcastToRoom(roomID, protocol.New(protocol.TypeEvent, map[string]any{
		"type":      event,
		"drawer_id": info.DrawerID,
		"round":     info.RoundNumber,
	}), "")
}

// broadcastRoomUpdate sends every member of the room its own projection of
// room state. Views are built and enqueued under the room lock so no two
// recipients observe different rounds interleaved.
func (d *Dispatcher) broadcastRoomUpdate(roomID string) {
	members := d.sessionsInRoom(roomID)
	if len(members) == 0 {
		return
	}
	_ = d.registry.WithRoom(roomID, func(r *room.Room) error {
		for _, sess := range members {
			view := r.View(sess.PlayerID())
			data, err := structToMap(view)
			if err != nil {
				d.logger.Error("encoding room view", zap.Error(err))
				continue
			}
			_ = sess.Send(protocol.New(protocol.TypeRoomUpdate, data))
		}
		return nil
	})
}

// broadcastRoomsUpdate pushes the room directory to sessions that are not
// in any room yet, so lobby screens stay current.
func (d *Dispatcher) broadcastRoomsUpdate() {
	views := d.registry.Snapshot()
	msg := protocol.New(protocol.TypeRoomsUpdate, map[string]any{
		"rooms": roomListData(views),
	})

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sess := range d.byPlayer {
		if sess.RoomID() == "" {
			_ = sess.Send(msg)
		}
	}
}

// broadcastToRoom sends one identical message to every member of the
// room, optionally excluding a player.
func (d *Dispatcher) broadcastToRoom(roomID string, msg *protocol.Message, excludePlayerID string) {
	for _, sess := range d.sessionsInRoom(roomID) {
		if excludePlayerID != "" && sess.PlayerID() == excludePlayerID {
			continue
		}
		_ = sess.Send(msg)
	}
}

func (d *Dispatcher) sessionsInRoom(roomID string) []*session.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*session.Session
	for _, sess := range d.byPlayer {
		if sess.RoomID() == roomID {
			out = append(out, sess)
		}
	}
	return out
}

// sendError converts a handler error into an error message for the
// originating session only.
func (d *Dispatcher) sendError(sess *session.Session, err error) {
	d.logger.Debug("request rejected",
		zap.String("player_id", sess.PlayerID()),
		zap.Error(err),
	)
	_ = sess.Send(protocol.New(protocol.TypeError, map[string]any{
		"msg": err.Error(),
	}))
}

// structToMap converts a JSON-taggable struct into message payload form.
func structToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func roomListData(views []room.View) []map[string]any {
	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, map[string]any{
			"room_id":      v.RoomID,
			"player_count": v.PlayerCount,
			"max_players":  v.MaxPlayers,
			"status":       string(v.Status),
		})
	}
	return out
}

func standingsData(standings []room.Standing) []map[string]any {
	out := make([]map[string]any, 0, len(standings))
	for _, s := range standings {
		out = append(out, map[string]any{
			"player_id": s.ID,
			"name":      s.Name,
			"score":     s.Score,
		})
	}
	return out
}
