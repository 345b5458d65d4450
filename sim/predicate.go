package sim

// Predicate selects events. Entities use predicates to wait for, select, and
// cancel events.
type Predicate func(ev *Event) bool

// Any matches every event.
func Any(*Event) bool { return true }

// None matches nothing.
func None(*Event) bool { return false }

// MatchTags matches events carrying any of the given tags.
func MatchTags(tags ...Tag) Predicate {
	return func(ev *Event) bool {
		for _, t := range tags {
			if ev.tag == t {
				return true
			}
		}
		return false
	}
}

// ExceptTags matches events carrying none of the given tags.
func ExceptTags(tags ...Tag) Predicate {
	match := MatchTags(tags...)
	return func(ev *Event) bool { return !match(ev) }
}

// FromSource matches events sent by the given entity.
func FromSource(id int) Predicate {
	return func(ev *Event) bool { return ev.src == id }
}

// And matches events accepted by every predicate.
func And(preds ...Predicate) Predicate {
	return func(ev *Event) bool {
		for _, p := range preds {
			if !p(ev) {
				return false
			}
		}
		return true
	}
}
