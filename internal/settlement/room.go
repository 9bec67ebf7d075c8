package settlement

import "time"

// NewRoom returns a room record in the NotStarted phase.
func NewRoom(id RoomID, creator Identity, now time.Time) Room {
	return Room{
		ID:        id,
		Status:    StatusNotStarted,
		Entries:   []Entry{},
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start binds the entry limits and opens the room for entries.
func (r *Room) Start(minLimit, maxLimit uint64, now time.Time) error {
	if r.Status != StatusNotStarted {
		return detailf(ErrAlreadyInitialized, "room %s is %s", r.ID, r.Status)
	}
	if minLimit > maxLimit {
		return detailf(ErrInvalidLimits, "min %d > max %d", minLimit, maxLimit)
	}
	r.MinLimit = minLimit
	r.MaxLimit = maxLimit
	r.Entries = []Entry{}
	r.Total = 0
	return r.advance(StatusInProgress, now)
}

// RequireInProgress fails unless entries and draws are currently allowed.
func (r *Room) RequireInProgress() error {
	if r.Status != StatusInProgress {
		return detailf(ErrNotInProgress, "room %s is %s", r.ID, r.Status)
	}
	return nil
}

// End records the winner and closes the room. It is the only place the
// winner is assigned.
func (r *Room) End(winner Identity, draw DrawResult, now time.Time) error {
	if err := r.RequireInProgress(); err != nil {
		return err
	}
	if r.HasWinner() {
		return detailf(ErrAlreadyInitialized, "room %s already has a winner", r.ID)
	}
	if err := r.advance(StatusEnded, now); err != nil {
		return err
	}
	r.Winner = winner
	r.Draw = &draw
	ended := now
	r.EndedAt = &ended
	return nil
}

// RequireSettleable fails unless the room has ended and was not paid out.
func (r *Room) RequireSettleable() error {
	if r.Status != StatusEnded {
		return detailf(ErrRoomStillInProgress, "room %s is %s", r.ID, r.Status)
	}
	if r.Settled {
		return detailf(ErrAlreadySettled, "room %s", r.ID)
	}
	return nil
}

// MarkSettled stores the payout breakdown and sets the settled flag.
func (r *Room) MarkSettled(s Settlement, now time.Time) error {
	if err := r.RequireSettleable(); err != nil {
		return err
	}
	r.Settled = true
	r.Settlement = &s
	settled := now
	r.SettledAt = &settled
	r.UpdatedAt = now
	return nil
}

func (r *Room) advance(next Status, now time.Time) error {
	if !r.Status.CanAdvanceTo(next) {
		return detailf(ErrNotInProgress, "room %s cannot move from %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}
