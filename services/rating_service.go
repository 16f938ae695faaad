// services/rating_service.go
package services

import "math"

// Rating math constants. These are product-tuned values; changing any of
// them changes every historical recalculation, so treat them as frozen.
const (
	BaseLevelChange      = 0.05
	MaxLevelChange       = 0.3
	ReliabilityIncrement = 0.1
	LevelPointsPerWin    = 10

	MinMultiplier       = 0.3
	MaxMultiplier       = 3.0
	CloseMatchThreshold = 3
	BlowoutThreshold    = 15

	MinLevel       = 1.0
	MaxLevel       = 7.0
	MinReliability = 0.0
	MaxReliability = 100.0
)

// PlayerRatingState is the slice of a player's state the rating math needs.
type PlayerRatingState struct {
	Level       float64
	Reliability float64
	GamesPlayed int
}

// RatedSet is one set's scores from the rated player's perspective.
type RatedSet struct {
	OwnScore      int
	OpponentScore int
}

// RatingUpdate is the full per-match breakdown. The intermediate terms
// (multiplier, endurance, reliability coefficient) are part of the public
// result because the outcome explanation surfaces them to end users.
type RatingUpdate struct {
	LevelChange            float64 `json:"level_change"`
	PointsEarned           int     `json:"points_earned"`
	Multiplier             float64 `json:"multiplier"`
	TotalPointDifferential int     `json:"total_point_differential"`
	EnduranceCoefficient   float64 `json:"endurance_coefficient"`
	ReliabilityCoefficient float64 `json:"reliability_coefficient"`
}

// ClampLevel bounds a level to the playable rating domain.
func ClampLevel(level float64) float64 {
	return math.Max(MinLevel, math.Min(MaxLevel, level))
}

// ClampReliability bounds reliability to [0, 100].
func ClampReliability(reliability float64) float64 {
	return math.Max(MinReliability, math.Min(MaxReliability, reliability))
}

func validRatedSets(sets []RatedSet) []RatedSet {
	valid := make([]RatedSet, 0, len(sets))
	for _, s := range sets {
		if s.OwnScore > 0 || s.OpponentScore > 0 {
			valid = append(valid, s)
		}
	}
	return valid
}

// enduranceCoefficient scales the level delta by how long the match ran:
// total points across both sides divided by 20, multiplied by 5 when the
// game counts individual balls instead of rally points.
func enduranceCoefficient(sets []RatedSet, ballsInGames bool) float64 {
	if len(sets) == 0 {
		return 1
	}
	sum := 0
	for _, s := range sets {
		sum += s.OwnScore + s.OpponentScore
	}
	coefficient := float64(sum) / 20
	if ballsInGames {
		coefficient *= 5
	}
	return coefficient
}

// differentialMultiplier maps the signed total point differential onto a
// delta multiplier: close matches damp toward MinMultiplier, blowouts
// amplify up to MaxMultiplier, linear in between.
func differentialMultiplier(sets []RatedSet) (multiplier float64, totalDifferential int) {
	for _, s := range validRatedSets(sets) {
		totalDifferential += s.OwnScore - s.OpponentScore
	}
	abs := math.Abs(float64(totalDifferential))

	if abs <= CloseMatchThreshold {
		ratio := abs / CloseMatchThreshold
		return MinMultiplier + (1.0-MinMultiplier)*ratio, totalDifferential
	}
	if abs >= BlowoutThreshold {
		return MaxMultiplier, totalDifferential
	}
	ratio := (abs - CloseMatchThreshold) / (BlowoutThreshold - CloseMatchThreshold)
	return 1.0 + (MaxMultiplier-1.0)*ratio, totalDifferential
}

// CalculateRatingUpdate computes one match's level delta for a player
// against an opposing side of average level opponentsLevel. The base delta
// scales with the level gap, then set scores refine it through the
// differential multiplier and the endurance coefficient, and established
// players (high reliability) move more slowly.
func CalculateRatingUpdate(player PlayerRatingState, isWinner bool, opponentsLevel float64, sets []RatedSet, ballsInGames bool) RatingUpdate {
	levelDifference := opponentsLevel - player.Level

	var base float64
	if isWinner {
		base = math.Min(BaseLevelChange*(1+levelDifference/10), MaxLevelChange)
	} else {
		base = math.Max(-BaseLevelChange*(1-levelDifference/10), -MaxLevelChange)
	}

	multiplier := 1.0
	totalDifferential := 0
	if len(sets) > 0 {
		multiplier, totalDifferential = differentialMultiplier(sets)
	}

	levelChange := base * multiplier

	endurance := enduranceCoefficient(sets, ballsInGames)
	levelChange *= endurance

	reliabilityCoefficient := math.Pow(0.95, ClampReliability(player.Reliability))
	levelChange *= reliabilityCoefficient

	levelChange = math.Max(-MaxLevelChange, math.Min(MaxLevelChange, levelChange))

	pointsEarned := 0
	if isWinner {
		pointsEarned = LevelPointsPerWin
	}

	return RatingUpdate{
		LevelChange:            levelChange,
		PointsEarned:           pointsEarned,
		Multiplier:             multiplier,
		TotalPointDifferential: totalDifferential,
		EnduranceCoefficient:   endurance,
		ReliabilityCoefficient: reliabilityCoefficient,
	}
}

// RewardPoints converts a player's win/tie/loss counts into reward currency
// using the game's configured per-outcome weights. This is deliberately a
// separate formula from the level points inside CalculateRatingUpdate.
func RewardPoints(wins, ties, losses, perWin, perTie, perLoose int) int {
	return wins*perWin + ties*perTie + losses*perLoose
}
