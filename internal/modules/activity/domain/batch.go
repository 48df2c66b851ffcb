package domain

// PendingBatch holds points accepted since the last successful flush. It is never persisted.
type PendingBatch struct {
	points []TrackPoint
}

func (b *PendingBatch) Add(p TrackPoint) {
	b.points = append(b.points, p)
}

func (b *PendingBatch) Len() int {
	return len(b.points)
}

// Peek copies up to max of the oldest pending points; max <= 0 means all of them.
func (b *PendingBatch) Peek(max int) []TrackPoint {
	n := len(b.points)
	if max > 0 && max < n {
		n = max
	}
	out := make([]TrackPoint, n)
	copy(out, b.points[:n])
	return out
}

// Ack drops the n oldest points after the backend stored them.
func (b *PendingBatch) Ack(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.points) {
		b.points = nil
		return
	}
	b.points = append([]TrackPoint(nil), b.points[n:]...)
}

func (b *PendingBatch) Reset() {
	b.points = nil
}
