package voice

// responseQueue is a bounded FIFO. Pushing onto a full queue drops the
// oldest entry.
type responseQueue struct {
	items []ResponseRequest
	limit int
}

func newResponseQueue(limit int) *responseQueue {
	if limit < 1 {
		limit = 1
	}
	return &responseQueue{limit: limit}
}

// push reports the evicted request, if any.
func (q *responseQueue) push(req ResponseRequest) (ResponseRequest, bool) {
	var evicted ResponseRequest
	dropped := false
	if len(q.items) >= q.limit {
		evicted = q.items[0]
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, req)
	return evicted, dropped
}

func (q *responseQueue) pop() (ResponseRequest, bool) {
	if len(q.items) == 0 {
		return ResponseRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

func (q *responseQueue) len() int {
	return len(q.items)
}

func (q *responseQueue) clear() {
	q.items = nil
}
