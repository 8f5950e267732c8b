// internal/game/utils.go
package game

import "github.com/blanksgame/blanks/internal/deck"

// allUnique reports whether ints contains no duplicate values.
func allUnique(ints []int) bool {
	seen := make(map[int]struct{}, len(ints))
	for _, n := range ints {
		if _, ok := seen[n]; ok {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}

// withoutIndexes returns cards with the listed positions removed, preserving
// the order of the survivors. Out-of-range indexes are ignored.
func withoutIndexes(cards []deck.WhiteCard, indexes []int) []deck.WhiteCard {
	drop := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		drop[i] = struct{}{}
	}
	kept := make([]deck.WhiteCard, 0, len(cards))
	for i, c := range cards {
		if _, ok := drop[i]; ok {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
