// Package survey stores the System Usability Scale questionnaire doctors fill
// in after using the record system, and scores it.
package survey

import (
	"time"

	"github.com/google/uuid"
)

// Questions are the ten fixed SUS statements, answered on a 1 (strongly
// disagree) to 5 (strongly agree) scale. Odd statements are positive, even
// ones negative.
var Questions = [NumQuestions]string{
	"I think that I would like to use this system frequently.",
	"I found the system unnecessarily complex.",
	"I thought the system was easy to use.",
	"I think that I would need the support of a technical person to be able to use this system.",
	"I found the various functions in this system were well integrated.",
	"I thought there was too much inconsistency in this system.",
	"I would imagine that most people would learn to use this system very quickly.",
	"I found the system very cumbersome to use.",
	"I felt very confident using the system.",
	"I needed to learn a lot of things before I could get going with this system.",
}

type Response struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Answers     [NumQuestions]int `json:"answers"`
	Score       float64           `json:"score"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type SubmitRequest struct {
	Answers []int `json:"answers" validate:"required,len=10,dive,min=1,max=5"`
}

// Summary is the admin view over all responses.
type Summary struct {
	Count     int         `json:"count"`
	MeanScore float64     `json:"mean_score"`
	Responses []*Response `json:"responses"`
}
