package game

import (
	"sort"

	"trivia-service/internal/domain"
)

// CorrectBasePoints is the flat award for any correct answer.
const CorrectBasePoints = 10

// SpeedBonus is the positional bonus for the fastest correct answers:
// position 0 earns the largest bonus.
var SpeedBonus = [...]int{5, 4, 3, 2, 1}

// Awards computes the per-player point award for one question given every
// answer recorded during its window. Correct answers are ordered by
// ascending submission timestamp; timestamp ties keep their recorded
// arrival order. Players absent from the result received nothing.
func Awards(answers []domain.Answer) map[string]int {
	correct := make([]domain.Answer, 0, len(answers))
	for _, a := range answers {
		if a.IsCorrect {
			correct = append(correct, a)
		}
	}
	sort.SliceStable(correct, func(i, j int) bool {
		return correct[i].Timestamp < correct[j].Timestamp
	})

	awards := make(map[string]int, len(correct))
	for _, a := range correct {
		awards[a.PlayerID] += CorrectBasePoints
	}
	for i, a := range correct {
		if i >= len(SpeedBonus) {
			break
		}
		awards[a.PlayerID] += SpeedBonus[i]
	}
	return awards
}
