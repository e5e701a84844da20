// internal/models/room.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusGenerating Status = "generating"
	StatusLecture    Status = "lecture"
	StatusBattle     Status = "battle"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

type Side string

const (
	SideHost  Side = "host"
	SideGuest Side = "guest"
)

// Opponent returns the other side of the match.
func (s Side) Opponent() Side {
	if s == SideHost {
		return SideGuest
	}
	return SideHost
}

func (s Side) Valid() bool {
	return s == SideHost || s == SideGuest
}

type Action string

const (
	ActionAttack Action = "attack"
	ActionDefend Action = "defend"
)

type Winner string

const (
	WinnerHost  Winner = "host"
	WinnerGuest Winner = "guest"
	WinnerDraw  Winner = "draw"
)

const (
	// AIPlayerID is the guest id used when the host battles the automated opponent.
	AIPlayerID = "AI"

	MaxHP          = 10
	QuizLength     = 15
	ChoiceCount    = 4
	MaxRetries     = 3
	MaxTopicLength = 100
)

type QuizQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
}

// Room is the persisted record of one match. Only the fields valid for the
// current Status are populated; see game.Decode for the typed view.
type Room struct {
	ID            string                             `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt     time.Time                          `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time                          `json:"updatedAt"`
	Version       int                                `json:"version" gorm:"not null;default:0"`
	HostID        string                             `json:"hostId" gorm:"size:64;not null;index"`
	GuestID       string                             `json:"guestId" gorm:"size:64;index"`
	HostTopic     string                             `json:"hostTopic"`
	GuestTopic    string                             `json:"guestTopic"`
	FinalTopic    string                             `json:"finalTopic"`
	Status        Status                             `json:"status" gorm:"size:16;not null;index"`
	Lecture       string                             `json:"lecture"`
	QuizList      datatypes.JSONType[[]QuizQuestion] `json:"quizList"`
	CurrentTurn   Side                               `json:"currentTurn" gorm:"size:8"`
	CurrentAction Action                             `json:"currentAction" gorm:"size:8"`
	HostHP        int                                `json:"hostHp" gorm:"not null"`
	GuestHP       int                                `json:"guestHp" gorm:"not null"`
	Winner        Winner                             `json:"winner" gorm:"size:8"`
	RetryCount    int                                `json:"retryCount" gorm:"not null;default:0"`
	Error         string                             `json:"error"`
	FinishedAt    *time.Time                         `json:"finishedAt"`
}

// Questions returns the stored quiz list, nil when none has been generated.
func (r *Room) Questions() []QuizQuestion {
	return r.QuizList.Data()
}

func (r *Room) SetQuestions(questions []QuizQuestion) {
	r.QuizList = datatypes.NewJSONType(questions)
}

// Columns lists every mutable column, used for version-checked updates.
func (r *Room) Columns() map[string]interface{} {
	return map[string]interface{}{
		"updated_at":     r.UpdatedAt,
		"version":        r.Version,
		"guest_id":       r.GuestID,
		"host_topic":     r.HostTopic,
		"guest_topic":    r.GuestTopic,
		"final_topic":    r.FinalTopic,
		"status":         r.Status,
		"lecture":        r.Lecture,
		"quiz_list":      r.QuizList,
		"current_turn":   r.CurrentTurn,
		"current_action": r.CurrentAction,
		"host_hp":        r.HostHP,
		"guest_hp":       r.GuestHP,
		"winner":         r.Winner,
		"retry_count":    r.RetryCount,
		"error":          r.Error,
		"finished_at":    r.FinishedAt,
	}
}

// BattleLogEntry records one resolved answer. Rows are never updated.
type BattleLogEntry struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	RoomID        string    `json:"roomId" gorm:"size:36;not null;index"`
	UserID        string    `json:"userId" gorm:"size:64;not null"`
	QuestionIndex int       `json:"questionIndex"`
	AnswerIndex   int       `json:"answerIndex"`
	IsCorrect     bool      `json:"isCorrect"`
	IsAttacker    bool      `json:"isAttacker"`
	Damage        int       `json:"damage"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
}

// Match is the summary written when a battle ends with a winner.
type Match struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	RoomID     string    `json:"roomId" gorm:"size:36;not null;index"`
	WinnerID   string    `json:"winnerId" gorm:"size:64;index"`
	LoserID    string    `json:"loserId" gorm:"size:64;index"`
	FinalTopic string    `json:"finalTopic"`
	Date       time.Time `json:"date" gorm:"index"`
}
