// internal/models/dto.go
package models

import "time"

type HPDTO struct {
	Host  int `json:"host"`
	Guest int `json:"guest"`
}

type QuestionDTO struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex *int     `json:"answerIndex,omitempty"` // Only once the battle is over
}

type RoomDTO struct {
	ID            string        `json:"id"`
	Version       int           `json:"version"`
	HostID        string        `json:"hostId"`
	GuestID       string        `json:"guestId,omitempty"`
	HostTopic     string        `json:"hostTopic"`
	GuestTopic    string        `json:"guestTopic,omitempty"`
	FinalTopic    string        `json:"finalTopic,omitempty"`
	Status        Status        `json:"status"`
	Lecture       string        `json:"lecture,omitempty"`
	QuizList      []QuestionDTO `json:"quizList"`
	CurrentTurn   Side          `json:"currentTurn,omitempty"`
	CurrentAction Action        `json:"currentAction,omitempty"`
	HP            HPDTO         `json:"hp"`
	Winner        Winner        `json:"winner,omitempty"`
	RetryCount    int           `json:"retryCount"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
}

// ToDTO renders the room for clients. Correct answers stay hidden until the
// room is finished so they cannot be read off the wire mid-battle.
func (r *Room) ToDTO() RoomDTO {
	reveal := r.Status == StatusFinished

	questions := r.Questions()
	questionDTOs := make([]QuestionDTO, len(questions))
	for i, q := range questions {
		dto := QuestionDTO{
			ID:       q.ID,
			Question: q.Question,
			Choices:  q.Choices,
		}
		if reveal {
			answer := q.AnswerIndex
			dto.AnswerIndex = &answer
		}
		questionDTOs[i] = dto
	}

	return RoomDTO{
		ID:            r.ID,
		Version:       r.Version,
		HostID:        r.HostID,
		GuestID:       r.GuestID,
		HostTopic:     r.HostTopic,
		GuestTopic:    r.GuestTopic,
		FinalTopic:    r.FinalTopic,
		Status:        r.Status,
		Lecture:       r.Lecture,
		QuizList:      questionDTOs,
		CurrentTurn:   r.CurrentTurn,
		CurrentAction: r.CurrentAction,
		HP:            HPDTO{Host: r.HostHP, Guest: r.GuestHP},
		Winner:        r.Winner,
		RetryCount:    r.RetryCount,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
		FinishedAt:    r.FinishedAt,
	}
}
