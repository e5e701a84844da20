// internal/game/state.go

// Package game holds the typed room state machine and the battle resolver.
// Every function here is pure: callers load a room, decode it, compute the
// next state and apply it back inside a store transaction.
package game

import (
	"fmt"
	"strings"
	"time"

	"quiz-battle/internal/models"
)

// State is one of Waiting, Generating, Errored, Lecture, Battle or Finished.
type State interface {
	Status() models.Status
	apply(r *models.Room)
}

type Player struct {
	ID    string
	Topic string
}

// IsAI reports whether the player is the automated opponent.
func (p Player) IsAI() bool {
	return p.ID == models.AIPlayerID
}

type HP struct {
	Host  int
	Guest int
}

func (hp HP) Of(side models.Side) int {
	if side == models.SideHost {
		return hp.Host
	}
	return hp.Guest
}

func (hp HP) With(side models.Side, value int) HP {
	if side == models.SideHost {
		hp.Host = value
	} else {
		hp.Guest = value
	}
	return hp
}

func (hp HP) valid() bool {
	return hp.Host >= 0 && hp.Host <= models.MaxHP && hp.Guest >= 0 && hp.Guest <= models.MaxHP
}

func FullHP() HP {
	return HP{Host: models.MaxHP, Guest: models.MaxHP}
}

// Content is the generated study material shared by lecture, battle and
// finished rooms.
type Content struct {
	Topic   string
	Lecture string
	Quiz    []models.QuizQuestion
}

type Waiting struct {
	Host Player
}

type Generating struct {
	Host    Player
	Guest   Player
	Attempt int
}

type Errored struct {
	Host    Player
	Guest   Player
	Message string
	Attempt int
}

type Lecture struct {
	Host    Player
	Guest   Player
	Content Content
	Attempt int
}

type Battle struct {
	Host    Player
	Guest   Player
	Content Content
	Turn    models.Side
	Action  models.Action
	HP      HP
}

type Finished struct {
	Host       Player
	Guest      Player
	Content    Content
	HP         HP
	Winner     models.Winner
	FinishedAt time.Time
}

func (Waiting) Status() models.Status    { return models.StatusWaiting }
func (Generating) Status() models.Status { return models.StatusGenerating }
func (Errored) Status() models.Status    { return models.StatusError }
func (Lecture) Status() models.Status    { return models.StatusLecture }
func (Battle) Status() models.Status     { return models.StatusBattle }
func (Finished) Status() models.Status   { return models.StatusFinished }

// CanRetry reports whether generation may be attempted again.
func (e Errored) CanRetry() bool {
	return e.Attempt < models.MaxRetries
}

// PlayerOf returns the id of whoever plays side.
func (b Battle) PlayerOf(side models.Side) string {
	if side == models.SideHost {
		return b.Host.ID
	}
	return b.Guest.ID
}

// InvalidStateError reports a stored room whose fields do not fit its status.
type InvalidStateError struct {
	RoomID string
	Status models.Status
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("room %s: invalid %s state: %s", e.RoomID, e.Status, e.Reason)
}

// Decode converts a stored room into its typed state.
func Decode(r *models.Room) (State, error) {
	invalid := func(reason string) error {
		return &InvalidStateError{RoomID: r.ID, Status: r.Status, Reason: reason}
	}

	host := Player{ID: r.HostID, Topic: r.HostTopic}
	guest := Player{ID: r.GuestID, Topic: r.GuestTopic}
	if host.ID == "" {
		return nil, invalid("missing host")
	}

	if r.Status == models.StatusWaiting {
		return Waiting{Host: host}, nil
	}
	if guest.ID == "" {
		return nil, invalid("missing guest")
	}
	if r.RetryCount < 0 || r.RetryCount > models.MaxRetries {
		return nil, invalid(fmt.Sprintf("retry count %d out of range", r.RetryCount))
	}

	switch r.Status {
	case models.StatusGenerating:
		return Generating{Host: host, Guest: guest, Attempt: r.RetryCount}, nil

	case models.StatusError:
		return Errored{Host: host, Guest: guest, Message: r.Error, Attempt: r.RetryCount}, nil
	}

	content := Content{Topic: r.FinalTopic, Lecture: r.Lecture, Quiz: r.Questions()}
	if err := ValidateQuiz(content.Quiz); err != nil {
		return nil, invalid(err.Error())
	}
	if strings.TrimSpace(content.Lecture) == "" {
		return nil, invalid("missing lecture")
	}

	hp := HP{Host: r.HostHP, Guest: r.GuestHP}
	if !hp.valid() {
		return nil, invalid(fmt.Sprintf("hp %+v out of range", hp))
	}

	switch r.Status {
	case models.StatusLecture:
		return Lecture{Host: host, Guest: guest, Content: content, Attempt: r.RetryCount}, nil

	case models.StatusBattle:
		if !r.CurrentTurn.Valid() {
			return nil, invalid(fmt.Sprintf("unknown turn %q", r.CurrentTurn))
		}
		if r.CurrentAction != models.ActionAttack && r.CurrentAction != models.ActionDefend {
			return nil, invalid(fmt.Sprintf("unknown action %q", r.CurrentAction))
		}
		return Battle{
			Host:    host,
			Guest:   guest,
			Content: content,
			Turn:    r.CurrentTurn,
			Action:  r.CurrentAction,
			HP:      hp,
		}, nil

	case models.StatusFinished:
		switch r.Winner {
		case models.WinnerHost, models.WinnerGuest, models.WinnerDraw:
		default:
			return nil, invalid("missing winner")
		}
		if r.FinishedAt == nil {
			return nil, invalid("missing finish time")
		}
		return Finished{
			Host:       host,
			Guest:      guest,
			Content:    content,
			HP:         hp,
			Winner:     r.Winner,
			FinishedAt: *r.FinishedAt,
		}, nil
	}

	return nil, invalid("unknown status")
}

// Apply writes s into r, clearing every field s does not carry.
func Apply(s State, r *models.Room) {
	r.Status = s.Status()
	s.apply(r)
}

func (s Waiting) apply(r *models.Room) {
	setPlayers(r, s.Host, Player{})
	clearContent(r)
	r.HostHP, r.GuestHP = models.MaxHP, models.MaxHP
	r.CurrentTurn, r.CurrentAction = models.SideHost, models.ActionAttack
	r.RetryCount = 0
	r.Error = ""
	clearResult(r)
}

func (s Generating) apply(r *models.Room) {
	setPlayers(r, s.Host, s.Guest)
	clearContent(r)
	r.RetryCount = s.Attempt
	r.Error = ""
	clearResult(r)
}

func (s Errored) apply(r *models.Room) {
	setPlayers(r, s.Host, s.Guest)
	clearContent(r)
	r.RetryCount = s.Attempt
	r.Error = s.Message
	clearResult(r)
}

func (s Lecture) apply(r *models.Room) {
	setPlayers(r, s.Host, s.Guest)
	setContent(r, s.Content)
	r.RetryCount = s.Attempt
	r.Error = ""
	clearResult(r)
}

func (s Battle) apply(r *models.Room) {
	setPlayers(r, s.Host, s.Guest)
	setContent(r, s.Content)
	r.CurrentTurn = s.Turn
	r.CurrentAction = s.Action
	r.HostHP, r.GuestHP = s.HP.Host, s.HP.Guest
	r.Error = ""
	clearResult(r)
}

func (s Finished) apply(r *models.Room) {
	setPlayers(r, s.Host, s.Guest)
	setContent(r, s.Content)
	r.HostHP, r.GuestHP = s.HP.Host, s.HP.Guest
	r.Winner = s.Winner
	finishedAt := s.FinishedAt
	r.FinishedAt = &finishedAt
	r.Error = ""
}

func setPlayers(r *models.Room, host, guest Player) {
	r.HostID, r.HostTopic = host.ID, host.Topic
	r.GuestID, r.GuestTopic = guest.ID, guest.Topic
}

func setContent(r *models.Room, c Content) {
	r.FinalTopic = c.Topic
	r.Lecture = c.Lecture
	r.SetQuestions(c.Quiz)
}

func clearContent(r *models.Room) {
	r.FinalTopic = ""
	r.Lecture = ""
	r.SetQuestions(nil)
}

func clearResult(r *models.Room) {
	r.Winner = ""
	r.FinishedAt = nil
}
