package services

import (
	"testing"

	"game-results-system/models"

	"github.com/stretchr/testify/assert"
)

func matchWithSets(scores ...[2]int) models.Match {
	m := models.Match{}
	for i, s := range scores {
		m.Sets = append(m.Sets, models.SetScore{SetNumber: i + 1, TeamAScore: s[0], TeamBScore: s[1]})
	}
	return m
}

func TestValidSetsDropsUnplayed(t *testing.T) {
	m := matchWithSets([2]int{6, 4}, [2]int{0, 0}, [2]int{0, 3})
	valid := ValidSets(m.Sets)
	assert.Len(t, valid, 2)
}

func TestCalculateMatchWinnerByScores(t *testing.T) {
	assert.Equal(t, models.MatchSideA,
		CalculateMatchWinner(matchWithSets([2]int{6, 4}, [2]int{3, 4}), models.MatchWinnerRuleByScores))
	assert.Equal(t, models.MatchSideB,
		CalculateMatchWinner(matchWithSets([2]int{1, 6}), models.MatchWinnerRuleByScores))
	// equal totals with played sets is a tie
	assert.Equal(t, "",
		CalculateMatchWinner(matchWithSets([2]int{6, 4}, [2]int{4, 6}), models.MatchWinnerRuleByScores))
	// nothing played, nothing decided
	assert.Equal(t, "",
		CalculateMatchWinner(matchWithSets([2]int{0, 0}), models.MatchWinnerRuleByScores))
}

func TestCalculateMatchWinnerBySets(t *testing.T) {
	// B takes more sets despite fewer total points
	m := matchWithSets([2]int{10, 0}, [2]int{4, 6}, [2]int{4, 6})
	assert.Equal(t, models.MatchSideB, CalculateMatchWinner(m, models.MatchWinnerRuleBySets))
	assert.Equal(t, models.MatchSideA, CalculateMatchWinner(m, models.MatchWinnerRuleByScores))

	// one set each
	assert.Equal(t, "",
		CalculateMatchWinner(matchWithSets([2]int{6, 4}, [2]int{4, 6}), models.MatchWinnerRuleBySets))
}

func TestSidePlayerIDs(t *testing.T) {
	m := models.Match{Players: []models.MatchPlayer{
		{UserID: "u1", Side: models.MatchSideA},
		{UserID: "u2", Side: models.MatchSideB},
		{UserID: "u3", Side: models.MatchSideA},
	}}
	assert.Equal(t, []string{"u1", "u3"}, SidePlayerIDs(m, models.MatchSideA))
	assert.Equal(t, []string{"u2"}, SidePlayerIDs(m, models.MatchSideB))
}
