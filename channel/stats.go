package channel

// Stats is a snapshot of a channel's counters and current state.
type Stats struct {
	Capacity int
	Occupied int

	BytesWritten  uint64
	BytesRead     uint64
	Writes        uint64 // Successful writes
	Reads         uint64 // Successful reads
	WouldBlock    uint64
	Interrupted   uint64
	Clears        uint64
	Notifications uint64 // Notifications queued, summed over subscribers

	ReadersWaiting int
	WritersWaiting int
	Subscribers    int
	Handles        int
}

// Utilization is Occupied/Capacity in [0, 1].
func (s Stats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}

	return float64(s.Occupied) / float64(s.Capacity)
}
