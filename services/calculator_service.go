// services/calculator_service.go
package services

import (
	"log"
	"sort"

	"game-results-system/models"
)

// AggregationPlayer is a player's starting state for one game replay.
// Level must already be primed: the level stored in a previous outcome's
// LevelBefore when recomputing, else the live level.
type AggregationPlayer struct {
	UserID      string
	Level       float64
	Reliability float64
	GamesPlayed int
	Gender      string
}

// PlayerTally accumulates one player's results across every playable match
// of a game. Accumulation is commutative per player; the level deltas are
// order-dependent and always follow round/match ascending order.
type PlayerTally struct {
	UserID        string
	LevelChange   float64
	MatchesPlayed int
	MatchesWon    int
	Wins          int
	Ties          int
	Losses        int
	ScoresMade    int
	ScoresLost    int
}

// ScoresDelta is own points minus opponent points, summed over all matches.
func (t *PlayerTally) ScoresDelta() int {
	return t.ScoresMade - t.ScoresLost
}

// ReliabilityChange grows by a flat increment per match played, regardless
// of result or opponent strength.
func (t *PlayerTally) ReliabilityChange() float64 {
	return float64(t.MatchesPlayed) * ReliabilityIncrement
}

// RoundTally carries the per-round level deltas for round outcome rows.
type RoundTally struct {
	RoundID      string
	RoundNumber  int
	LevelChanges map[string]float64
}

// GameAggregation is the full replay result handed to the standings
// resolver and the apply step.
type GameAggregation struct {
	Tallies map[string]*PlayerTally
	Rounds  []RoundTally
}

func sortRounds(rounds []models.Round) []models.Round {
	ordered := make([]models.Round, len(rounds))
	copy(ordered, rounds)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RoundNumber < ordered[j].RoundNumber })
	for ri := range ordered {
		sort.Slice(ordered[ri].Matches, func(i, j int) bool {
			return ordered[ri].Matches[i].MatchNumber < ordered[ri].Matches[j].MatchNumber
		})
		for mi := range ordered[ri].Matches {
			sets := ordered[ri].Matches[mi].Sets
			sort.Slice(sets, func(i, j int) bool { return sets[i].SetNumber < sets[j].SetNumber })
		}
	}
	return ordered
}

func averageLevel(players []AggregationPlayer) float64 {
	if len(players) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range players {
		sum += p.Level
	}
	return sum / float64(len(players))
}

func resolveSide(byID map[string]AggregationPlayer, ids []string) []AggregationPlayer {
	resolved := make([]AggregationPlayer, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			resolved = append(resolved, p)
		}
	}
	return resolved
}

// AggregateGame replays every playable match in round/match order and
// returns per-player tallies plus per-round level deltas. A match missing a
// resolvable side is skipped with a diagnostic log; it never aborts the
// whole aggregation.
func AggregateGame(players []AggregationPlayer, rounds []models.Round, ballsInGames bool) GameAggregation {
	byID := make(map[string]AggregationPlayer, len(players))
	tallies := make(map[string]*PlayerTally, len(players))
	for _, p := range players {
		byID[p.UserID] = p
		tallies[p.UserID] = &PlayerTally{UserID: p.UserID}
	}

	roundTallies := make([]RoundTally, 0, len(rounds))

	for _, round := range sortRounds(rounds) {
		roundTally := RoundTally{
			RoundID:      round.ID,
			RoundNumber:  round.RoundNumber,
			LevelChanges: make(map[string]float64, len(players)),
		}
		for _, p := range players {
			roundTally.LevelChanges[p.UserID] = 0
		}

		for _, match := range round.Matches {
			valid := ValidSets(match.Sets)
			if len(valid) == 0 {
				continue // not played
			}

			sideA := resolveSide(byID, SidePlayerIDs(match, models.MatchSideA))
			sideB := resolveSide(byID, SidePlayerIDs(match, models.MatchSideB))
			if len(sideA) == 0 || len(sideB) == 0 {
				log.Printf("[AGGREGATE] match %s skipped: side without resolvable players (A=%d, B=%d)",
					match.ID, len(sideA), len(sideB))
				continue
			}

			teamAWins := match.WinnerSide == models.MatchSideA
			teamBWins := match.WinnerSide == models.MatchSideB
			isTie := !teamAWins && !teamBWins

			totalA, totalB := 0, 0
			for _, s := range valid {
				totalA += s.TeamAScore
				totalB += s.TeamBScore
			}

			avgA := averageLevel(sideA)
			avgB := averageLevel(sideB)

			accumulate := func(p AggregationPlayer, won bool, opponentsLevel float64, own, lost int, sets []RatedSet) {
				tally := tallies[p.UserID]
				update := CalculateRatingUpdate(PlayerRatingState{
					Level:       p.Level + tally.LevelChange,
					Reliability: p.Reliability,
					GamesPlayed: p.GamesPlayed,
				}, won, opponentsLevel, sets, ballsInGames)

				roundTally.LevelChanges[p.UserID] += update.LevelChange
				tally.LevelChange += update.LevelChange
				tally.MatchesPlayed++
				tally.ScoresMade += own
				tally.ScoresLost += lost
				if won {
					tally.Wins++
					tally.MatchesWon++
				} else if isTie {
					tally.Ties++
				} else {
					tally.Losses++
				}
			}

			setsA := make([]RatedSet, 0, len(valid))
			setsB := make([]RatedSet, 0, len(valid))
			for _, s := range valid {
				setsA = append(setsA, RatedSet{OwnScore: s.TeamAScore, OpponentScore: s.TeamBScore})
				setsB = append(setsB, RatedSet{OwnScore: s.TeamBScore, OpponentScore: s.TeamAScore})
			}

			for _, p := range sideA {
				accumulate(p, teamAWins, avgB, totalA, totalB, setsA)
			}
			for _, p := range sideB {
				accumulate(p, teamBWins, avgA, totalB, totalA, setsB)
			}
		}

		roundTallies = append(roundTallies, roundTally)
	}

	return GameAggregation{Tallies: tallies, Rounds: roundTallies}
}
