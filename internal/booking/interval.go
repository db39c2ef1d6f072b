package booking

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsValid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// OverlapsAny reports whether iv intersects any of the given intervals.
func (iv Interval) OverlapsAny(busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// Decompose walks the window in fixed step increments from its start and
// returns every candidate that fits entirely inside the window. A candidate
// whose end would spill past the window is never emitted.
func Decompose(window Interval, step time.Duration) []Interval {
	if step <= 0 || !window.IsValid() {
		return nil
	}

	var out []Interval
	for cursor := window.Start; cursor.Before(window.End); cursor = cursor.Add(step) {
		end := cursor.Add(step)
		if end.After(window.End) {
			break
		}
		out = append(out, Interval{Start: cursor, End: end})
	}
	return out
}
