package room

// PlayerView is the outward-facing snapshot of one player.
type PlayerView struct {
	ID       string `json:"player_id"`
	Name     string `json:"player_name"`
	Score    int    `json:"score"`
	IsDrawer bool   `json:"is_drawer"`
	IsReady  bool   `json:"is_ready"`
}

// View is the outward-facing snapshot of the room, projected for one
// recipient. CurrentWord is populated only when the recipient is the
// active drawer; for everyone else the field marshals away entirely.
type View struct {
	RoomID       string       `json:"room_id"`
	OwnerID      string       `json:"owner_id"`
	Status       Status       `json:"status"`
	Players      []PlayerView `json:"players"`
	PlayerCount  int          `json:"player_count"`
	MaxPlayers   int          `json:"max_players"`
	DrawerID     string       `json:"drawer_id,omitempty"`
	RoundNumber  int          `json:"round_number"`
	MaxRounds    int          `json:"max_rounds"`
	RoundSeconds int          `json:"round_seconds"`
	CurrentWord  string       `json:"current_word,omitempty"`
}

// Standing is one row of the final scoreboard.
type Standing struct {
	ID    string `json:"player_id"`
	Name  string `json:"player_name"`
	Score int    `json:"score"`
}

// View builds a snapshot projected for the given recipient. Players appear
// in join order so every client renders the same roster.
func (r *Room) View(forPlayerID string) View {
	v := View{
		RoomID:       r.id,
		OwnerID:      r.ownerID,
		Status:       r.status,
		Players:      make([]PlayerView, 0, len(r.order)),
		PlayerCount:  len(r.players),
		MaxPlayers:   r.opts.MaxPlayers,
		DrawerID:     r.DrawerID(),
		RoundNumber:  r.roundNumber,
		MaxRounds:    r.opts.MaxRounds,
		RoundSeconds: r.opts.RoundSeconds,
	}
	for _, id := range r.order {
		p := r.players[id]
		v.Players = append(v.Players, PlayerView{
			ID:       p.ID,
			Name:     p.Name,
			Score:    p.Score,
			IsDrawer: p.IsDrawer,
			IsReady:  p.IsReady,
		})
	}
	if word, ok := r.VisibleWordFor(forPlayerID); ok {
		v.CurrentWord = word
	}
	return v
}

// Standings returns the scoreboard sorted by score descending, ties broken
// by join order.
func (r *Room) Standings() []Standing {
	out := make([]Standing, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		out = append(out, Standing{ID: p.ID, Name: p.Name, Score: p.Score})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
