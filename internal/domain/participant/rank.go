package participant

// Rank is the position a workshop holds in a participant's preferences.
type Rank int

const (
	RankNone Rank = iota
	RankFirst
	RankSecond
	RankThird
)

// Label renders the rank the way exports and the dashboard show it.
func (r Rank) Label() string {
	switch r {
	case RankFirst:
		return "First Preference"
	case RankSecond:
		return "Second Preference"
	case RankThird:
		return "Third Preference"
	default:
		return ""
	}
}
