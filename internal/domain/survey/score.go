package survey

import (
	"fmt"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

const NumQuestions = 10

// Score computes the SUS score in [0, 100]. Odd questions contribute
// answer-1, even questions 5-answer, and the sum is scaled by 2.5.
func Score(answers [NumQuestions]int) (float64, error) {
	sum := 0
	for i, a := range answers {
		if a < 1 || a > 5 {
			return 0, apperr.Validation(fmt.Sprintf("answers[%d]", i), "must be between 1 and 5")
		}
		if i%2 == 0 {
			sum += a - 1
		} else {
			sum += 5 - a
		}
	}
	return float64(sum) * 2.5, nil
}
