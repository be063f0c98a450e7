package media

// Segment is one planned cut, in whole seconds from the start of the source.
type Segment struct {
	Start    int
	Duration int
}

// PlanSegments divides a source of totalSec seconds into back-to-back clips of
// clipSec each. Only full-length segments are planned; the tail remainder is
// discarded rather than emitted short.
func PlanSegments(totalSec float64, clipSec int) []Segment {
	if clipSec <= 0 || totalSec < float64(clipSec) {
		return nil
	}
	n := int(totalSec) / clipSec
	out := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Segment{Start: i * clipSec, Duration: clipSec})
	}
	return out
}
