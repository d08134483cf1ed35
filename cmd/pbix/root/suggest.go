package root

import "github.com/agnivade/levenshtein"

// SuggestTable returns the table name closest to name by edit distance,
// used to build a "did you mean" hint when a -table flag doesn't match
// any table in the model.
func SuggestTable(name string, names []string) string {
	best := ""
	bestDist := -1
	for _, n := range names {
		d := levenshtein.ComputeDistance(name, n)
		if bestDist == -1 || d < bestDist {
			bestDist, best = d, n
		}
	}
	return best
}
