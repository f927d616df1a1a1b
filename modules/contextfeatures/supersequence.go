package contextfeatures

// NewElement is an element of a supersequence that is not part of the
// subsequence it was matched against, paired with its position in the
// supersequence.
type NewElement struct {
	Value string
	Index int
}

// IsSupersequence reports whether sub is order-preserved within super, by
// greedy left-to-right matching. When it is, the returned slice holds every
// element of super that was not consumed by the match: exactly the elements
// considered "new" relative to sub, and the candidates for index
// reassignment during a reorder.
//
// IsSupersequence([a b c d e], [a c d]) = [(b,1) (e,4)], true.
// IsSupersequence([a b c], [a b c d]) = nil, false.
func IsSupersequence(super, sub []string) ([]NewElement, bool) {
	var fresh []NewElement
	next := 0
	for i, elem := range super {
		if next < len(sub) && sub[next] == elem {
			next++
			continue
		}
		fresh = append(fresh, NewElement{Value: elem, Index: i})
	}
	if next < len(sub) {
		return nil, false
	}
	return fresh, true
}
