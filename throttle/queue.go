/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package throttle

// compactThreshold is the number of consumed head slots after which the backing array is compacted.
const compactThreshold = 64

// jobQueue is an unbounded FIFO of jobs waiting for admission.
// It is not safe for concurrent use; the scheduler guards it with its mutex.
type jobQueue struct {
	items []*job
	head  int
}

func (q *jobQueue) len() int {
	return len(q.items) - q.head
}

func (q *jobQueue) push(j *job) {
	q.items = append(q.items, j)
}

// pop removes and returns the head of the queue.
func (q *jobQueue) pop() (*job, bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	j := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		for i := n; i < len(q.items); i++ {
			q.items[i] = nil
		}
		q.items = q.items[:n]
		q.head = 0
	}
	return j, true
}
