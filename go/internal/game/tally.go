package game

// Answer option codes.
const (
	OptionA uint8 = 1
	OptionB uint8 = 2
	OptionC uint8 = 3
)

// CountVotes tallies answer codes. Codes outside 1..3 are ignored.
func CountVotes(answers map[string]uint8) Tally {
	var t Tally
	for _, code := range answers {
		switch code {
		case OptionA:
			t.A++
		case OptionB:
			t.B++
		case OptionC:
			t.C++
		default:
			continue
		}
		t.Total++
	}
	t.Majority = Majority(t.A, t.B, t.C)
	return t
}

// Majority returns the option with the most votes, preferring the lowest
// option number when counts tie. With no votes it returns OptionA.
func Majority(a, b, c int) uint8 {
	switch {
	case a >= b && a >= c:
		return OptionA
	case b >= c:
		return OptionB
	default:
		return OptionC
	}
}

// Losers lists the players whose answer differs from the majority.
func Losers(answers map[string]uint8, majority uint8) []string {
	var out []string
	for addr, code := range answers {
		if code >= OptionA && code <= OptionC && code != majority {
			out = append(out, addr)
		}
	}
	return out
}
