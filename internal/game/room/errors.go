package room

import "errors"

// Room-logic errors. These are reported to the requesting client only and
// leave room state unchanged; none of them is fatal to a connection.
var (
	ErrRoomFull         = errors.New("room is full")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrNoPlayersLeft    = errors.New("no players left in the drawer schedule")
	ErrNotPlaying       = errors.New("game is not in progress")
	ErrNotInRoom        = errors.New("player is not in the room")
	ErrNotOwner         = errors.New("player is not the room owner")
	ErrNotDrawer        = errors.New("player is not the current drawer")
)
