// services/standings_service.go
package services

import (
	"log"
	"sort"

	"game-results-system/models"
)

// Standing is one ranked entry of a resolved game. Place uses competition
// ranking: tied entries share a place and the next group's place is the
// previous plus one, so a game can have several winners at place 1.
type Standing struct {
	UserID      string  `json:"user_id"`
	Place       int     `json:"place"`
	Wins        int     `json:"wins"`
	Ties        int     `json:"ties"`
	Losses      int     `json:"losses"`
	ScoresMade  int     `json:"scores_made"`
	ScoresLost  int     `json:"scores_lost"`
	Points      int     `json:"points"`
	MatchesWon  int     `json:"matches_won"`
	ScoresDelta int     `json:"scores_delta"`
	Gender      string  `json:"gender,omitempty"`
	Level       float64 `json:"level"`
}

// IsWinner reports whether this entry shares the top place.
func (s Standing) IsWinner() bool { return s.Place == 1 }

// FixedTeamMembers is a configured team with its member user ids.
type FixedTeamMembers struct {
	TeamID     string
	TeamNumber int
	PlayerIDs  []string
}

// StandingsInput bundles everything the resolver needs. Players must be the
// playing participants with their starting levels primed the same way the
// aggregation was.
type StandingsInput struct {
	WinnerRule      string
	MatchWinnerRule string
	PointsPerWin    int
	PointsPerTie    int
	PointsPerLoose  int
	HasFixedTeams   bool
	MixedPairs      bool
	Players         []AggregationPlayer
	Rounds          []models.Round
	Tallies         map[string]*PlayerTally
	FixedTeams      []FixedTeamMembers
}

type headToHead int8

const (
	h2hNone headToHead = iota // never met, or met without a decided match
	h2hFirst
	h2hSecond
	h2hTie
)

type h2hMap map[string]map[string]headToHead

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// headToHeadWinner counts decided direct matches between two players using
// the match-winner rule, ignoring matches where they were teammates.
func headToHeadWinner(aID, bID string, rounds []models.Round, matchWinnerRule string) headToHead {
	aWins, bWins := 0, 0
	for _, round := range rounds {
		for _, match := range round.Matches {
			if len(ValidSets(match.Sets)) == 0 {
				continue
			}
			sideA := SidePlayerIDs(match, models.MatchSideA)
			sideB := SidePlayerIDs(match, models.MatchSideB)
			aInA, aInB := contains(sideA, aID), contains(sideB, aID)
			bInA, bInB := contains(sideA, bID), contains(sideB, bID)
			opponents := (aInA && bInB) || (aInB && bInA)
			if !opponents {
				continue
			}
			switch CalculateMatchWinner(match, matchWinnerRule) {
			case models.MatchSideA:
				if aInA {
					aWins++
				} else {
					bWins++
				}
			case models.MatchSideB:
				if aInB {
					aWins++
				} else {
					bWins++
				}
			}
		}
	}
	if aWins > bWins {
		return h2hFirst
	}
	if bWins > aWins {
		return h2hSecond
	}
	if aWins > 0 {
		return h2hTie
	}
	return h2hNone
}

// buildHeadToHeadMap precomputes the symmetric direct-match record for
// every unordered pair of players.
func buildHeadToHeadMap(players []AggregationPlayer, rounds []models.Round, matchWinnerRule string) h2hMap {
	m := make(h2hMap, len(players))
	for _, p := range players {
		m[p.UserID] = make(map[string]headToHead, len(players)-1)
	}
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			a, b := players[i].UserID, players[j].UserID
			result := headToHeadWinner(a, b, rounds, matchWinnerRule)
			m[a][b] = result
			switch result {
			case h2hFirst:
				m[b][a] = h2hSecond
			case h2hSecond:
				m[b][a] = h2hFirst
			default:
				m[b][a] = result
			}
		}
	}
	return m
}

type standingsResolver struct {
	in  StandingsInput
	h2h h2hMap
}

func (r *standingsResolver) points(t *PlayerTally) int {
	return RewardPoints(t.Wins, t.Ties, t.Losses, r.in.PointsPerWin, r.in.PointsPerTie, r.in.PointsPerLoose)
}

func (r *standingsResolver) compareHeadToHead(a, b Standing) int {
	switch r.h2h[a.UserID][b.UserID] {
	case h2hFirst:
		return -1
	case h2hSecond:
		return 1
	}
	return 0
}

// compare orders two standings with the winner rule's full tie-break chain.
// The final comparator is level ascending: when everything else is equal
// the lower-rated player wins the tie.
func (r *standingsResolver) compare(a, b Standing) int {
	ta, tb := r.in.Tallies[a.UserID], r.in.Tallies[b.UserID]

	byMatches := tb.MatchesWon - ta.MatchesWon
	byTies := tb.Ties - ta.Ties
	byDelta := tb.ScoresDelta() - ta.ScoresDelta()

	chain := func(steps ...int) int {
		for _, step := range steps {
			if step != 0 {
				return step
			}
		}
		if h := r.compareHeadToHead(a, b); h != 0 {
			return h
		}
		switch {
		case a.Level < b.Level:
			return -1
		case a.Level > b.Level:
			return 1
		}
		return 0
	}

	switch r.in.WinnerRule {
	case models.WinnerRuleByPoints:
		return chain(r.points(tb)-r.points(ta), byMatches, byTies, byDelta)
	case models.WinnerRuleByScoresDelta:
		return chain(byDelta, byMatches, byTies)
	default: // BY_MATCHES_WON
		return chain(byMatches, byTies, byDelta)
	}
}

// tied reports full comparator equality: identical tallies, no decided
// head-to-head between the two, and equal starting level.
func (r *standingsResolver) tied(a, b Standing) bool {
	ta, tb := r.in.Tallies[a.UserID], r.in.Tallies[b.UserID]
	if ta.Wins != tb.Wins || ta.Ties != tb.Ties || ta.Losses != tb.Losses ||
		ta.MatchesWon != tb.MatchesWon || ta.ScoresDelta() != tb.ScoresDelta() {
		return false
	}
	if r.in.WinnerRule == models.WinnerRuleByPoints && r.points(ta) != r.points(tb) {
		return false
	}
	if h := r.h2h[a.UserID][b.UserID]; h == h2hFirst || h == h2hSecond {
		return false
	}
	return a.Level == b.Level
}

func (r *standingsResolver) sortStandings(standings []Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		return r.compare(standings[i], standings[j]) < 0
	})
}

// assignPlaces walks the sorted slice grouping comparator-equal neighbours
// into one place; the next group gets the previous place plus one.
func (r *standingsResolver) assignPlaces(standings []Standing) {
	place := 1
	i := 0
	for i < len(standings) {
		j := i + 1
		for j < len(standings) && r.tied(standings[i], standings[j]) {
			j++
		}
		for k := i; k < j; k++ {
			standings[k].Place = place
		}
		place++
		i = j
	}
}

// ResolveStandings turns aggregated tallies into a placed ranking. Fixed
// teams and mixed pairs reshape the entries before the shared comparator
// logic runs; PLAYOFF_FINALS games resolve nothing here because finals are
// decided by bracket logic elsewhere.
func ResolveStandings(in StandingsInput) []Standing {
	if in.WinnerRule == models.WinnerRulePlayoffFinals {
		return []Standing{}
	}
	if len(in.Players) == 0 || len(in.Rounds) == 0 {
		return []Standing{}
	}

	r := &standingsResolver{
		in:  in,
		h2h: buildHeadToHeadMap(in.Players, in.Rounds, in.MatchWinnerRule),
	}

	standings := make([]Standing, 0, len(in.Players))
	for _, p := range in.Players {
		t := in.Tallies[p.UserID]
		if t == nil {
			continue
		}
		points := 0
		if in.WinnerRule == models.WinnerRuleByPoints {
			points = r.points(t)
		}
		standings = append(standings, Standing{
			UserID:      p.UserID,
			Wins:        t.Wins,
			Ties:        t.Ties,
			Losses:      t.Losses,
			ScoresMade:  t.ScoresMade,
			ScoresLost:  t.ScoresLost,
			Points:      points,
			MatchesWon:  t.MatchesWon,
			ScoresDelta: t.ScoresDelta(),
			Gender:      p.Gender,
			Level:       p.Level,
		})
	}

	if in.MixedPairs && !in.HasFixedTeams {
		return r.resolveMixedPairs(standings)
	}
	if in.HasFixedTeams && len(in.FixedTeams) > 0 {
		return r.resolveFixedTeams(standings)
	}

	r.sortStandings(standings)
	r.assignPlaces(standings)
	return standings
}

// resolveMixedPairs ranks the gender pools independently and interleaves
// them pairwise for display. The pools are genuinely incomparable, so no
// cross-gender head-to-head or joint placing is attempted.
func (r *standingsResolver) resolveMixedPairs(standings []Standing) []Standing {
	var male, female []Standing
	for _, s := range standings {
		switch s.Gender {
		case models.GenderMale:
			male = append(male, s)
		case models.GenderFemale:
			female = append(female, s)
		}
	}

	r.sortStandings(male)
	r.sortStandings(female)
	r.assignPlaces(male)
	r.assignPlaces(female)

	interleaved := make([]Standing, 0, len(male)+len(female))
	max := len(male)
	if len(female) > max {
		max = len(female)
	}
	for i := 0; i < max; i++ {
		if i < len(male) {
			interleaved = append(interleaved, male[i])
		}
		if i < len(female) {
			interleaved = append(interleaved, female[i])
		}
	}
	return interleaved
}

type teamScore struct {
	teamID      string
	teamNumber  int
	playerIDs   []string
	matchesWon  int
	wins        int
	ties        int
	losses      int
	totalPoints int
	scoresDelta int
	points      int
}

// resolveFixedTeams aggregates member tallies per configured team (max of
// the match counters since teammates play identical matches, sum of the
// score totals), ranks teams, and broadcasts the team place back to every
// member's standing.
func (r *standingsResolver) resolveFixedTeams(standings []Standing) []Standing {
	byUser := make(map[string]*Standing, len(standings))
	for i := range standings {
		byUser[standings[i].UserID] = &standings[i]
	}

	teams := make([]teamScore, 0, len(r.in.FixedTeams))
	for _, team := range r.in.FixedTeams {
		ts := teamScore{teamID: team.TeamID, teamNumber: team.TeamNumber, playerIDs: team.PlayerIDs}
		members := 0
		for _, id := range team.PlayerIDs {
			t := r.in.Tallies[id]
			if t == nil || byUser[id] == nil {
				continue
			}
			members++
			if t.MatchesWon > ts.matchesWon {
				ts.matchesWon = t.MatchesWon
			}
			if t.Wins > ts.wins {
				ts.wins = t.Wins
			}
			if t.Ties > ts.ties {
				ts.ties = t.Ties
			}
			if t.Losses > ts.losses {
				ts.losses = t.Losses
			}
			ts.totalPoints += t.ScoresMade
			ts.scoresDelta += t.ScoresDelta()
			ts.points += r.points(t)
		}
		if members == 0 {
			log.Printf("[STANDINGS] fixed team %s (number %d) has no members with stats, skipping", team.TeamID, team.TeamNumber)
			continue
		}
		if members < len(team.PlayerIDs) {
			log.Printf("[STANDINGS] fixed team %s has %d/%d members with stats", team.TeamID, members, len(team.PlayerIDs))
		}
		teams = append(teams, ts)
	}

	compareTeams := func(a, b teamScore) int {
		byMatches := b.matchesWon - a.matchesWon
		byTies := b.ties - a.ties
		byDelta := b.scoresDelta - a.scoresDelta
		chain := func(steps ...int) int {
			for _, step := range steps {
				if step != 0 {
					return step
				}
			}
			return 0
		}
		switch r.in.WinnerRule {
		case models.WinnerRuleByPoints:
			return chain(b.points-a.points, byMatches, byTies, byDelta)
		case models.WinnerRuleByScoresDelta:
			return chain(byDelta, byMatches, byTies)
		default:
			return chain(byMatches, byTies, byDelta)
		}
	}

	teamsTied := func(a, b teamScore) bool {
		if a.wins != b.wins || a.ties != b.ties || a.losses != b.losses ||
			a.matchesWon != b.matchesWon || a.scoresDelta != b.scoresDelta {
			return false
		}
		if r.in.WinnerRule == models.WinnerRuleByPoints && a.points != b.points {
			return false
		}
		return true
	}

	sort.SliceStable(teams, func(i, j int) bool { return compareTeams(teams[i], teams[j]) < 0 })

	position := 1
	i := 0
	for i < len(teams) {
		j := i + 1
		for j < len(teams) && teamsTied(teams[i], teams[j]) {
			j++
		}
		for k := i; k < j; k++ {
			for _, id := range teams[k].playerIDs {
				if s := byUser[id]; s != nil {
					s.Place = position
				} else {
					log.Printf("[STANDINGS] player %s of team %s has no standing, cannot assign place", id, teams[k].teamID)
				}
			}
		}
		position++
		i = j
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Place != standings[j].Place {
			return standings[i].Place < standings[j].Place
		}
		return r.compare(standings[i], standings[j]) < 0
	})
	return standings
}
