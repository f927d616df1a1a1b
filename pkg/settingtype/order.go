package settingtype

// Less reports whether t is structurally below other: every value valid for
// t is guaranteed valid for other. The relation is a strict partial order —
// irreflexive, asymmetric and transitive. The defined cases:
//
//	int < float
//	Enum[S1]  < Enum[S2]   when S1 ⊂ S2
//	Flags[S1] < Flags[S2]  when S1 ⊂ S2
//	Sequence<A> < Sequence<B> and Mapping<A> < Mapping<B> when A < B
//
// All other pairs are unrelated.
func (t Type) Less(other Type) bool {
	switch {
	case t.kind == KindInt && other.kind == KindFloat:
		return true
	case t.kind == KindEnum && other.kind == KindEnum,
		t.kind == KindFlags && other.kind == KindFlags:
		return subOptionSet(t.options, other.options)
	case t.kind == KindSequence && other.kind == KindSequence,
		t.kind == KindMapping && other.kind == KindMapping:
		return t.elem.Less(*other.elem)
	}
	return false
}
