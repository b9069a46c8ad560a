package service

import "sort"

// PriorityQueue is the ordered waiting line of agent-handled call ids. It is
// owned by the Orchestrator and not safe for concurrent use on its own.
type PriorityQueue struct {
	ids []string
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{ids: make([]string, 0)}
}

// Push appends id at the tail unless it is already queued.
func (q *PriorityQueue) Push(id string) {
	if q.Contains(id) {
		return
	}
	q.ids = append(q.ids, id)
}

// PushFront places id at the head, moving it there if already queued.
func (q *PriorityQueue) PushFront(id string) {
	q.Remove(id)
	q.ids = append([]string{id}, q.ids...)
}

func (q *PriorityQueue) Remove(id string) bool {
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (q *PriorityQueue) Contains(id string) bool {
	for _, v := range q.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (q *PriorityQueue) Peek() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	return q.ids[0], true
}

func (q *PriorityQueue) Len() int {
	return len(q.ids)
}

// IDs returns a copy of the current order.
func (q *PriorityQueue) IDs() []string {
	return append([]string(nil), q.ids...)
}

// Prune drops ids for which keep returns false and reports how many went.
func (q *PriorityQueue) Prune(keep func(id string) bool) int {
	out := q.ids[:0]
	dropped := 0
	for _, id := range q.ids {
		if keep(id) {
			out = append(out, id)
			continue
		}
		dropped++
	}
	q.ids = out
	return dropped
}

// Rerank stable-sorts the queue by score descending. Ids unknown to score
// are pruned first; ties keep their previous relative order.
func (q *PriorityQueue) Rerank(score func(id string) (int, bool)) {
	scores := make(map[string]int, len(q.ids))
	q.Prune(func(id string) bool {
		s, ok := score(id)
		if ok {
			scores[id] = s
		}
		return ok
	})
	sort.SliceStable(q.ids, func(i, j int) bool {
		return scores[q.ids[i]] > scores[q.ids[j]]
	})
}
