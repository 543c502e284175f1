package session

import "time"

// Performance bands, by accuracy.
const (
	BandExcellent    = "excellent"
	BandGreat        = "great"
	BandGood         = "good"
	BandKeepStudying = "keep_studying"
)

// Summary reports how a session went.
type Summary struct {
	SessionID  string    `json:"session_id"`
	LearnerID  string    `json:"learner_id"`
	Answered   int       `json:"answered"`
	Correct    int       `json:"correct"`
	TotalScore float64   `json:"total_score"`
	Accuracy   float64   `json:"accuracy"` // correct / answered, 0..1
	Band       string    `json:"band"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitzero"`
	Reason     string    `json:"reason,omitempty"`
}

// Band maps an accuracy in [0, 1] to a performance band.
func Band(accuracy float64) string {
	switch {
	case accuracy >= 0.9:
		return BandExcellent
	case accuracy >= 0.8:
		return BandGreat
	case accuracy >= 0.7:
		return BandGood
	}
	return BandKeepStudying
}

type tally struct {
	answered   int
	correct    int
	totalScore float64
	startedAt  time.Time
	endedAt    time.Time
	reason     string
}

func (t *tally) add(score float64, correct bool) {
	t.answered++
	t.totalScore += score
	if correct {
		t.correct++
	}
}

func (t *tally) summary(sessionID, learnerID string) Summary {
	s := Summary{
		SessionID:  sessionID,
		LearnerID:  learnerID,
		Answered:   t.answered,
		Correct:    t.correct,
		TotalScore: t.totalScore,
		StartedAt:  t.startedAt,
		EndedAt:    t.endedAt,
		Reason:     t.reason,
	}
	if t.answered > 0 {
		s.Accuracy = float64(t.correct) / float64(t.answered)
	}
	s.Band = Band(s.Accuracy)
	return s
}
