package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evAt(t float64, tag Tag) *Event {
	return NewEvent(EventSend, t, 0, 0, tag, nil)
}

func TestDeferredQueue_EqualTimesKeepArrivalOrder(t *testing.T) {
	// GIVEN E1(t=5), E2(t=5), E3(t=3) inserted in that order
	dq := NewDeferredQueue()
	e1, e2, e3 := evAt(5, 1), evAt(5, 2), evAt(3, 3)
	dq.AddEvent(e1)
	dq.AddEvent(e2)
	dq.AddEvent(e3)

	// THEN iteration yields E3, E1, E2
	assert.Equal(t, []*Event{e3, e1, e2}, dq.Events())
}

func TestDeferredQueue_InsertBeforeFirstGreaterTime(t *testing.T) {
	dq := NewDeferredQueue()
	a, b, c := evAt(1, 1), evAt(4, 2), evAt(9, 3)
	dq.AddEvent(a)
	dq.AddEvent(b)
	dq.AddEvent(c)

	mid := evAt(4, 4)
	dq.AddEvent(mid)
	early := evAt(0.5, 5)
	dq.AddEvent(early)

	assert.Equal(t, []*Event{early, a, b, mid, c}, dq.Events())
}

func TestDeferredQueue_SelectCountRemove(t *testing.T) {
	dq := NewDeferredQueue()
	a, b, c := evAt(1, TagCloudletSubmit), evAt(2, TagCloudletReturn), evAt(3, TagCloudletSubmit)
	for _, e := range []*Event{a, b, c} {
		dq.AddEvent(e)
	}

	assert.Equal(t, 2, dq.Count(MatchTags(TagCloudletSubmit)))
	assert.Same(t, b, dq.Select(MatchTags(TagCloudletReturn)))
	assert.Nil(t, dq.Select(MatchTags(TagCloudletReturn)), "nothing left to match")

	assert.True(t, dq.Remove(a))
	assert.False(t, dq.Remove(a), "removing an absent event reports failure")
	assert.Equal(t, 1, dq.Len())

	dq.Clear()
	assert.Equal(t, 0, dq.Len())
}

func TestFutureQueue_OrderedByTimeThenSequence(t *testing.T) {
	// GIVEN events added with decreasing times and repeated times
	q := NewFutureQueue()
	times := []float64{9, 4, 4, 7, 0, 4, 1}
	var added []*Event
	for i, tm := range times {
		e := evAt(tm, Tag(i))
		q.AddEvent(e)
		added = append(added, e)
	}

	// WHEN iterated
	got := q.Events()

	// THEN times ascend and equal times keep submission order
	require.Len(t, got, len(times))
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Time() > cur.Time() {
			t.Fatalf("position %d: time %v after %v", i, cur.Time(), prev.Time())
		}
		if prev.Time() == cur.Time() && prev.Sequence() >= cur.Sequence() {
			t.Fatalf("position %d: sequence %d after %d at equal time", i, cur.Sequence(), prev.Sequence())
		}
	}
	assert.Equal(t, []*Event{added[1], added[2], added[5]}, got[2:5])

	// AND popping drains in the same order
	for _, want := range got {
		assert.Same(t, want, q.PopNext())
	}
	assert.Nil(t, q.PopNext())
	assert.Nil(t, q.Peek())
}

func TestFutureQueue_AddEventFirstWinsTies(t *testing.T) {
	q := NewFutureQueue()
	regular := evAt(5, 1)
	q.AddEvent(regular)
	q.AddEvent(evAt(6, 2))
	urgent := evAt(5, 3)
	q.AddEventFirst(urgent)
	urgent2 := evAt(5, 4)
	q.AddEventFirst(urgent2)

	assert.Equal(t, int64(0), urgent.Sequence())
	assert.Same(t, urgent, q.PopNext())
	assert.Same(t, urgent2, q.PopNext())
	assert.Same(t, regular, q.PopNext())
}

func TestFutureQueue_RemoveIsExactMatch(t *testing.T) {
	q := NewFutureQueue()
	a, b, c := evAt(1, 1), evAt(2, 2), evAt(3, 3)
	for _, e := range []*Event{a, b, c} {
		q.AddEvent(e)
	}
	stranger := evAt(2, 2)

	assert.False(t, q.Remove(stranger), "equal fields are not the same event")
	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))
	assert.True(t, q.RemoveAll([]*Event{a, stranger}))
	assert.False(t, q.RemoveAll([]*Event{a}))
	assert.Equal(t, []*Event{c}, q.Events())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	d := evAt(0, 4)
	q.AddEvent(d)
	assert.Greater(t, d.Sequence(), c.Sequence(), "sequence numbering continues after Clear")
}

func TestFutureQueue_FirstMatching(t *testing.T) {
	q := NewFutureQueue()
	late := evAt(8, TagCloudletArrival)
	early := evAt(2, TagCloudletArrival)
	q.AddEvent(late)
	q.AddEvent(evAt(1, TagCloudletSubmit))
	q.AddEvent(early)

	assert.Same(t, early, q.First(MatchTags(TagCloudletArrival)))
	assert.Nil(t, q.First(MatchTags(TagVMMigrate)))
}

func TestPredicates(t *testing.T) {
	ev := NewEvent(EventSend, 1, 3, 4, TagCloudletReturn, nil)
	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"any", Any, true},
		{"none", None, false},
		{"tag hit", MatchTags(TagCloudletSubmit, TagCloudletReturn), true},
		{"tag miss", MatchTags(TagCloudletSubmit), false},
		{"except hit", ExceptTags(TagCloudletReturn), false},
		{"except miss", ExceptTags(TagCloudletSubmit), true},
		{"source", FromSource(3), true},
		{"wrong source", FromSource(4), false},
		{"and", And(FromSource(3), MatchTags(TagCloudletReturn)), true},
		{"and miss", And(FromSource(3), None), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p(ev))
		})
	}
}
