// internal/game/resolve.go
package game

import (
	"errors"
	"time"

	"quiz-battle/internal/models"
)

const (
	attackHitDamage  = 2
	attackMissDamage = 1
	defendHeal       = 1

	// blockDamage is reported for a successful defence.
	blockDamage = -1
)

var ErrInvalidQuestion = errors.New("invalid question index")

// Resolution is what the acting player learns about their answer.
type Resolution struct {
	IsCorrect  bool
	IsAttacker bool
	Damage     int
	HP         HP
	// Winner is empty while the battle goes on.
	Winner models.Winner
}

// Resolve applies one answer to an active battle and returns the outcome and
// the next state, either a Battle with the turn advanced or a Finished room.
//
// The acting role comes from b.Action alone; the caller's identity is not
// consulted.
func Resolve(b Battle, questionIndex, answerIndex int, now time.Time) (Resolution, State, error) {
	if questionIndex < 0 || questionIndex >= len(b.Content.Quiz) {
		return Resolution{}, nil, ErrInvalidQuestion
	}

	isCorrect := answerIndex == b.Content.Quiz[questionIndex].AnswerIndex
	isAttacker := b.Action == models.ActionAttack
	turn := b.Turn
	enemy := turn.Opponent()

	hp := b.HP
	damage := 0
	if isAttacker {
		damage = attackMissDamage
		if isCorrect {
			damage = attackHitDamage
		}
		hp = hp.With(enemy, max(0, hp.Of(enemy)-damage))
	} else if isCorrect {
		damage = blockDamage
		hp = hp.With(turn, min(models.MaxHP, hp.Of(turn)+defendHeal))
	}

	res := Resolution{
		IsCorrect:  isCorrect,
		IsAttacker: isAttacker,
		Damage:     damage,
		HP:         hp,
		Winner:     winnerOf(hp),
	}

	if res.Winner != "" {
		return res, Finished{
			Host:       b.Host,
			Guest:      b.Guest,
			Content:    b.Content,
			HP:         hp,
			Winner:     res.Winner,
			FinishedAt: now,
		}, nil
	}

	next := b
	next.HP = hp
	if isAttacker {
		next.Turn = enemy
		next.Action = models.ActionDefend
	} else {
		next.Action = models.ActionAttack
	}
	return res, next, nil
}

// winnerOf checks the host first, so a double knock-out goes to the guest.
func winnerOf(hp HP) models.Winner {
	switch {
	case hp.Host == 0:
		return models.WinnerGuest
	case hp.Guest == 0:
		return models.WinnerHost
	}
	return ""
}

// Start opens the battle for a room whose lecture is ready.
func Start(l Lecture, first models.Side) Battle {
	return Battle{
		Host:    l.Host,
		Guest:   l.Guest,
		Content: l.Content,
		Turn:    first,
		Action:  models.ActionAttack,
		HP:      FullHP(),
	}
}
