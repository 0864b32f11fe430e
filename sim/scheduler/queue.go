// Implements the waitQueue, which holds the requests a replica has been
// assigned but not yet put into a batch. New requests are enqueued at the
// back; requests returning from a batch go back to the front.

package scheduler

import (
	"fmt"
	"strings"

	"github.com/inference-sim/pipeline-sim/sim"
)

// waitQueue is a FIFO queue of requests waiting for their next pass.
type waitQueue struct {
	queue []*sim.Request
}

// Enqueue adds a request to the back of the queue.
func (wq *waitQueue) Enqueue(r *sim.Request) {
	wq.queue = append(wq.queue, r)
}

// PrependFront inserts reqs at the front of the queue, keeping their order.
// Requests that already made progress are resumed before newer arrivals.
func (wq *waitQueue) PrependFront(reqs []*sim.Request) {
	if len(reqs) == 0 {
		return
	}
	for _, req := range reqs {
		if req == nil {
			panic("PrependFront: req must not be nil")
		}
	}
	wq.queue = append(append(make([]*sim.Request, 0, len(reqs)+len(wq.queue)), reqs...), wq.queue...)
}

// Len returns the number of requests in the queue.
func (wq *waitQueue) Len() int {
	return len(wq.queue)
}

// Peek returns the request at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (wq *waitQueue) Peek() *sim.Request {
	if len(wq.queue) == 0 {
		return nil
	}
	return wq.queue[0]
}

// Dequeue removes the request at the front of the queue.
func (wq *waitQueue) Dequeue() *sim.Request {
	if len(wq.queue) == 0 {
		return nil
	}
	req := wq.queue[0]
	wq.queue[0] = nil
	wq.queue = wq.queue[1:]
	return req
}

func (wq *waitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, req := range wq.queue {
		sb.WriteString(fmt.Sprint(int(req.ID)))
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
