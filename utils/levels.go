// utils/levels.go
package utils

// LevelRange maps a numeric level band to its display name.
type LevelRange struct {
	Min  float64
	Max  float64
	Name string
}

var levelRanges = []LevelRange{
	{0, 0.99, "Initiation"},
	{1.0, 1.49, "Beginner"},
	{1.5, 2.4, "Initiation Intermediate"},
	{2.5, 3.4, "Intermediate"},
	{3.5, 4.4, "Intermediate High"},
	{4.5, 5.4, "Intermediate Advanced"},
	{5.5, 5.6, "Competition"},
	{5.7, 7.0, "Professional"},
}

// LevelName returns the display name for a numeric level. Levels between
// bands (or out of range) fall back to "Beginner".
func LevelName(level float64) string {
	for _, r := range levelRanges {
		if level >= r.Min && level <= r.Max {
			return r.Name
		}
	}
	return "Beginner"
}
