package sim

// EventQueue is a min-heap of tickets ordered by (time, priority, seqID).
// Implements heap.Interface.
//
// The time used for ordering is the one captured at Schedule, so events that
// mutate their own timestamp while queued cannot corrupt the heap.
type EventQueue []*Ticket

func (q EventQueue) Len() int { return len(q) }

func (q EventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	pi, pj := q[i].event.Priority(), q[j].event.Priority()
	if pi != pj {
		return pi < pj
	}
	return q[i].seqID < q[j].seqID
}

func (q EventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *EventQueue) Push(x any) {
	*q = append(*q, x.(*Ticket))
}

func (q *EventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
