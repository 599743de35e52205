// Package timetabling provides time-tabling propagation for resource
// constraints.
//
// This file defines the profile, the sweep-line representation of mandatory
// resource usage over time as an ordered sequence of rectangles.
package timetabling

import (
	"fmt"
	"sort"
	"strings"
)

// ProfileRectangle is one step of the profile. The rectangle keeps its Height
// from Start (inclusive) until the start of the next rectangle (exclusive);
// the end is never duplicated as an explicit field.
type ProfileRectangle struct {
	Start  IntegerValue
	Height IntegerValue
}

// Profile is an ordered sequence of rectangles with strictly increasing
// starts, bracketed by sentinel rectangles at MinIntegerValue and
// MaxIntegerValue. Profiles are derived scratch state: propagators rebuild
// them on every call and never persist them across backtracking.
type Profile []ProfileRectangle

// profileEvent is one demand step used while building a profile.
type profileEvent struct {
	time  IntegerValue
	delta IntegerValue
}

// buildProfileFromEvents sorts the events and sweeps them in time order,
// accumulating the height and emitting one rectangle per distinct time. All
// events at an equal time are merged before a rectangle is emitted, so a
// transient overshoot that never actually coexists is not reported.
//
// The returned profile reuses dst's backing array when large enough.
func buildProfileFromEvents(dst Profile, events []profileEvent) Profile {
	sort.Slice(events, func(i, j int) bool { return events[i].time < events[j].time })
	dst = dst[:0]
	dst = append(dst, ProfileRectangle{Start: MinIntegerValue, Height: 0})
	height := IntegerValue(0)
	for i := 0; i < len(events); {
		t := events[i].time
		for i < len(events) && events[i].time == t {
			height += events[i].delta
			i++
		}
		dst = append(dst, ProfileRectangle{Start: t, Height: height})
	}
	dst = append(dst, ProfileRectangle{Start: MaxIntegerValue, Height: 0})
	return dst
}

// reverseProfileInto fills dst with the time-mirrored profile of src: the
// rectangle covering [a, b) at height h becomes [-b, -a) at height h. src is
// left untouched; backward sweeps read the mirrored copy while the original
// stays available.
func reverseProfileInto(dst, src Profile) Profile {
	dst = dst[:0]
	for i := len(src) - 1; i > 0; i-- {
		dst = append(dst, ProfileRectangle{Start: -src[i].Start, Height: src[i-1].Height})
	}
	dst = append(dst, ProfileRectangle{Start: -src[0].Start, Height: 0})
	return dst
}

// rectangleAt returns the index of the rectangle covering time t. The
// sentinels guarantee a hit for any finite t.
func (p Profile) rectangleAt(t IntegerValue) int {
	return sort.Search(len(p), func(i int) bool { return p[i].Start > t }) - 1
}

// HeightAt returns the profile height at time t.
func (p Profile) HeightAt(t IntegerValue) IntegerValue {
	return p[p.rectangleAt(t)].Height
}

// MaxHeight returns the maximum height over the whole horizon and the start
// of the first rectangle reaching it.
func (p Profile) MaxHeight() (IntegerValue, IntegerValue) {
	best := IntegerValue(0)
	at := MinIntegerValue
	for _, r := range p {
		if r.Height > best {
			best = r.Height
			at = r.Start
		}
	}
	return best, at
}

// CheckInvariants verifies strictly increasing starts and, when
// nonNegative is set, non-negative heights. Used by tests.
func (p Profile) CheckInvariants(nonNegative bool) error {
	for i, r := range p {
		if i > 0 && p[i-1].Start >= r.Start {
			return fmt.Errorf("profile: rectangle %d start %d not above %d", i, r.Start, p[i-1].Start)
		}
		if nonNegative && r.Height < 0 {
			return fmt.Errorf("profile: rectangle %d has negative height %d", i, r.Height)
		}
	}
	return nil
}

// Compact returns a copy with adjacent equal-height rectangles merged.
// The sweep treats consecutive equal heights identically, so compaction is
// only needed for rendering and comparisons.
func (p Profile) Compact() Profile {
	out := make(Profile, 0, len(p))
	for _, r := range p {
		if len(out) > 0 && out[len(out)-1].Height == r.Height {
			continue
		}
		out = append(out, r)
	}
	return out
}

// String renders the profile one rectangle per line, with the sentinels
// written as -inf/+inf. The rendering is stable and used in golden tests.
func (p Profile) String() string {
	var b strings.Builder
	for i, r := range p {
		if r.Start == MaxIntegerValue {
			// Zero-width closing sentinel.
			continue
		}
		start := fmt.Sprintf("%d", r.Start)
		if r.Start == MinIntegerValue {
			start = "-inf"
		}
		end := "+inf"
		if i+1 < len(p) && p[i+1].Start != MaxIntegerValue {
			end = fmt.Sprintf("%d", p[i+1].Start)
		}
		fmt.Fprintf(&b, "[%s, %s) height=%d\n", start, end, r.Height)
	}
	return b.String()
}
