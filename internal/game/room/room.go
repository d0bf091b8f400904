// Package room implements the game state machine for one drawing room:
// players, drawer rotation, round and word management, and scoring. It is
// pure synchronous logic with no I/O; callers serialize every mutation
// through the registry's per-room lock.
package room

import (
	"math/rand"
	"strings"
	"time"
)

// Status is the room lifecycle phase.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// Default gameplay settings. Scoring values are configuration, not
// invariants; see Options.
const (
	DefaultMaxPlayers   = 8
	DefaultMaxRounds    = 3
	DefaultGuessPoints  = 10
	DefaultDrawerBonus  = 5
	DefaultRoundSeconds = 60
	MinPlayersToStart   = 2
)

// Player is one room member. Owned exclusively by the Room it belongs to.
type Player struct {
	ID       string
	Name     string
	Score    int
	IsDrawer bool
	IsReady  bool
}

// WordSource supplies the secret word for each round.
type WordSource interface {
	NextWord() string
}

// Options configures a Room. Zero values fall back to the defaults above.
type Options struct {
	MaxPlayers   int
	MaxRounds    int // rotation blocks per game
	GuessPoints  int // points for a correct guess
	DrawerBonus  int // points the drawer earns per solved guess
	RoundSeconds int // advisory round length, echoed to clients
	Seed         int64
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.GuessPoints <= 0 {
		o.GuessPoints = DefaultGuessPoints
	}
	if o.DrawerBonus <= 0 {
		o.DrawerBonus = DefaultDrawerBonus
	}
	if o.RoundSeconds <= 0 {
		o.RoundSeconds = DefaultRoundSeconds
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Room holds the authoritative state for one game session.
//
// Invariant: at most one player has IsDrawer == true, and while the room is
// Playing it is the player at drawerOrder[drawerIndex].
// Invariant: StatusPlaying implies drawerIndex < len(drawerOrder) and the
// drawer is present in players.
type Room struct {
	id    string
	opts  Options
	rng   *rand.Rand
	words WordSource

	players map[string]*Player
	order   []string // player IDs in join order
	ownerID string

	status      Status
	drawerOrder []string // precomputed schedule; len == MaxRounds * players at start
	drawerIndex int
	currentWord string
	roundNumber int
	solved      map[string]bool // players already awarded this round
}

// RoundInfo describes the outcome of one round advance.
type RoundInfo struct {
	RoundNumber int
	DrawerID    string
	Word        string
	Final       bool // the schedule is exhausted and the game has ended
}

// LeaveResult describes the side effects of removing a player.
type LeaveResult struct {
	Removed       bool
	WasDrawer     bool
	OwnerChanged  bool
	RoundAdvanced bool
	GameEnded     bool
	Round         RoundInfo // valid when RoundAdvanced
}

// GuessOutcome is the result of one guess submission.
type GuessOutcome struct {
	Correct bool
	Awarded bool   // false when the player already solved this round
	Word    string // the revealed word; set only when Correct
}

// New creates a Room in the Waiting state.
//
// Precondition: id must be non-empty; words must be non-nil.
func New(id string, words WordSource, opts Options) *Room {
	opts = opts.withDefaults()
	return &Room{
		id:          id,
		opts:        opts,
		rng:         rand.New(rand.NewSource(opts.Seed)),
		words:       words,
		players:     make(map[string]*Player),
		status:      StatusWaiting,
		drawerIndex: -1,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Status returns the current lifecycle phase.
func (r *Room) Status() Status { return r.status }

// OwnerID returns the current owner's player ID, or "" for an empty room.
func (r *Room) OwnerID() string { return r.ownerID }

// PlayerCount returns the number of players currently present.
func (r *Room) PlayerCount() int { return len(r.players) }

// HasPlayer reports whether the given player is present.
func (r *Room) HasPlayer(id string) bool {
	_, ok := r.players[id]
	return ok
}

// PlayerIDs returns the present players in join order.
func (r *Room) PlayerIDs() []string {
	return append([]string(nil), r.order...)
}

// DrawerID returns the current drawer's ID, or "" when no round is active.
func (r *Room) DrawerID() string {
	if r.status != StatusPlaying || r.drawerIndex < 0 || r.drawerIndex >= len(r.drawerOrder) {
		return ""
	}
	return r.drawerOrder[r.drawerIndex]
}

// RoundNumber returns the 1-based current round, or 0 before the game starts.
func (r *Room) RoundNumber() int { return r.roundNumber }

// TotalRounds returns the length of the precomputed drawer schedule.
func (r *Room) TotalRounds() int { return len(r.drawerOrder) }

// DrawerOrder returns a copy of the precomputed drawer schedule. Persisting
// the schedule, not just the current index, keeps round history
// reconstructible.
func (r *Room) DrawerOrder() []string {
	return append([]string(nil), r.drawerOrder...)
}

// Join adds a player. The first player to join becomes the room owner.
// Joining twice with the same ID is a no-op. Mid-game joins are rejected.
//
// Postcondition: on success the player is present with Score == 0.
func (r *Room) Join(id, name string) error {
	if r.HasPlayer(id) {
		return nil
	}
	if r.status != StatusWaiting {
		return ErrGameInProgress
	}
	if len(r.players) >= r.opts.MaxPlayers {
		return ErrRoomFull
	}
	r.players[id] = &Player{ID: id, Name: name}
	r.order = append(r.order, id)
	if r.ownerID == "" {
		r.ownerID = id
	}
	return nil
}

// Leave removes a player. A departing drawer forcibly ends the round and
// rotation advances to the next scheduled drawer who is still present.
// When fewer than two players remain mid-game, the game ends. Ownership
// transfers to the longest-present remaining player.
func (r *Room) Leave(id string) LeaveResult {
	res := LeaveResult{}
	p, ok := r.players[id]
	if !ok {
		return res
	}
	res.Removed = true
	res.WasDrawer = p.IsDrawer

	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.ownerID == id {
		r.ownerID = ""
		if len(r.order) > 0 {
			r.ownerID = r.order[0]
		}
		res.OwnerChanged = true
	}

	if r.status != StatusPlaying {
		return res
	}

	if len(r.players) < MinPlayersToStart {
		r.endGame()
		res.GameEnded = true
		return res
	}

	if res.WasDrawer {
		info, err := r.AdvanceRound()
		switch {
		case err != nil:
			// No present player remains in the schedule.
			r.endGame()
			res.GameEnded = true
		case info.Final:
			res.GameEnded = true
		default:
			res.RoundAdvanced = true
			res.Round = info
		}
	}
	return res
}

// SetReady records a player's lobby readiness flag. Readiness is advisory;
// starting the game remains the owner's call.
func (r *Room) SetReady(id string, ready bool) error {
	p, ok := r.players[id]
	if !ok {
		return ErrNotInRoom
	}
	p.IsReady = ready
	return nil
}

// Configure updates gameplay settings. Owner only, and only before the
// game starts, since the drawer schedule is derived from the settings.
func (r *Room) Configure(requesterID string, maxRounds, roundSeconds int) error {
	if !r.HasPlayer(requesterID) {
		return ErrNotInRoom
	}
	if requesterID != r.ownerID {
		return ErrNotOwner
	}
	if r.status != StatusWaiting {
		return ErrAlreadyStarted
	}
	if maxRounds > 0 {
		r.opts.MaxRounds = maxRounds
	}
	if roundSeconds > 0 {
		r.opts.RoundSeconds = roundSeconds
	}
	return nil
}

// Kick removes another player from the room. Owner only.
func (r *Room) Kick(requesterID, targetID string) (LeaveResult, error) {
	if !r.HasPlayer(requesterID) {
		return LeaveResult{}, ErrNotInRoom
	}
	if requesterID != r.ownerID {
		return LeaveResult{}, ErrNotOwner
	}
	if !r.HasPlayer(targetID) {
		return LeaveResult{}, ErrNotInRoom
	}
	return r.Leave(targetID), nil
}

// Start begins the game. Owner only; requires at least MinPlayersToStart
// players and the Waiting state. The drawer schedule is generated as
// MaxRounds independent permutations of the player set concatenated in
// sequence: every player draws exactly once per block, in a different
// relative order each block.
//
// Postcondition: on success the room is Playing and the first round is
// active with a drawer and a secret word.
func (r *Room) Start(requesterID string) (RoundInfo, error) {
	if !r.HasPlayer(requesterID) {
		return RoundInfo{}, ErrNotInRoom
	}
	if requesterID != r.ownerID {
		return RoundInfo{}, ErrNotOwner
	}
	if r.status != StatusWaiting {
		return RoundInfo{}, ErrAlreadyStarted
	}
	if len(r.players) < MinPlayersToStart {
		return RoundInfo{}, ErrNotEnoughPlayers
	}

	n := len(r.order)
	r.drawerOrder = make([]string, 0, n*r.opts.MaxRounds)
	for block := 0; block < r.opts.MaxRounds; block++ {
		for _, idx := range r.rng.Perm(n) {
			r.drawerOrder = append(r.drawerOrder, r.order[idx])
		}
	}

	for _, p := range r.players {
		p.Score = 0
		p.IsDrawer = false
	}
	r.status = StatusPlaying
	r.roundNumber = 0
	r.drawerIndex = -1

	return r.AdvanceRound()
}

// AdvanceRound moves to the next round: the next scheduled drawer who is
// still present takes over and a fresh secret word is drawn. When the
// schedule is exhausted the room transitions to Ended and the returned
// RoundInfo has Final set. Fails with ErrNoPlayersLeft, leaving state
// unchanged, when no present player remains in the rest of the schedule.
func (r *Room) AdvanceRound() (RoundInfo, error) {
	if r.status != StatusPlaying {
		return RoundInfo{}, ErrNotPlaying
	}

	if r.drawerIndex+1 >= len(r.drawerOrder) {
		r.endGame()
		return RoundInfo{RoundNumber: r.roundNumber, Final: true}, nil
	}

	for i := r.drawerIndex + 1; i < len(r.drawerOrder); i++ {
		next, ok := r.players[r.drawerOrder[i]]
		if !ok {
			continue // scheduled drawer has left; skip the slot
		}
		if cur := r.currentDrawer(); cur != nil {
			cur.IsDrawer = false
		}
		r.roundNumber++
		r.drawerIndex = i
		next.IsDrawer = true
		r.currentWord = strings.TrimSpace(r.words.NextWord())
		r.solved = make(map[string]bool)
		return RoundInfo{
			RoundNumber: r.roundNumber,
			DrawerID:    next.ID,
			Word:        r.currentWord,
		}, nil
	}

	return RoundInfo{}, ErrNoPlayersLeft
}

// RecordGuess compares a guess against the current word (trimmed,
// case-insensitive). A correct first guess awards GuessPoints to the
// guesser and DrawerBonus to the drawer; repeats within the same round
// stay Correct but award nothing. The drawer's own messages are never
// treated as guesses.
func (r *Room) RecordGuess(playerID, text string) (GuessOutcome, error) {
	p, ok := r.players[playerID]
	if !ok {
		return GuessOutcome{}, ErrNotInRoom
	}
	if r.status != StatusPlaying || r.currentWord == "" {
		return GuessOutcome{}, nil
	}
	if p.IsDrawer {
		return GuessOutcome{}, nil
	}
	if !strings.EqualFold(strings.TrimSpace(text), r.currentWord) {
		return GuessOutcome{}, nil
	}

	out := GuessOutcome{Correct: true, Word: r.currentWord}
	if r.solved[playerID] {
		return out, nil
	}
	r.solved[playerID] = true
	out.Awarded = true
	p.Score += r.opts.GuessPoints
	if drawer := r.currentDrawer(); drawer != nil {
		drawer.Score += r.opts.DrawerBonus
	}
	return out, nil
}

// GivePoints lets the current drawer award discretionary points to another
// player, e.g. for a near-miss.
func (r *Room) GivePoints(requesterID, targetID string, points int) error {
	req, ok := r.players[requesterID]
	if !ok {
		return ErrNotInRoom
	}
	if r.status != StatusPlaying {
		return ErrNotPlaying
	}
	if !req.IsDrawer {
		return ErrNotDrawer
	}
	target, ok := r.players[targetID]
	if !ok {
		return ErrNotInRoom
	}
	if points > 0 {
		target.Score += points
	}
	return nil
}

// End terminates the game early. Owner only.
func (r *Room) End(requesterID string) error {
	if !r.HasPlayer(requesterID) {
		return ErrNotInRoom
	}
	if requesterID != r.ownerID {
		return ErrNotOwner
	}
	r.endGame()
	return nil
}

// VisibleWordFor returns the current word only for the active drawer of a
// Playing room. This is the single authoritative choke point for word
// secrecy: every outward-facing snapshot is built per recipient through
// this check, never by copying a room-wide word field.
func (r *Room) VisibleWordFor(playerID string) (string, bool) {
	if r.status != StatusPlaying {
		return "", false
	}
	if playerID == "" || playerID != r.DrawerID() {
		return "", false
	}
	return r.currentWord, true
}

func (r *Room) currentDrawer() *Player {
	if r.drawerIndex < 0 || r.drawerIndex >= len(r.drawerOrder) {
		return nil
	}
	return r.players[r.drawerOrder[r.drawerIndex]]
}

func (r *Room) endGame() {
	if cur := r.currentDrawer(); cur != nil {
		cur.IsDrawer = false
	}
	r.status = StatusEnded
	r.currentWord = ""
	r.solved = nil
}
