package graph

import "container/heap"

// ComputeOrder returns every function ID such that each function follows all
// of its dependencies. Functions with no ordering constraint between them keep
// their insertion order. The graph must be valid.
func (s *Store) ComputeOrder() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.computeOrder()
}

func (s *state) computeOrder() ([]string, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	position := make(map[string]int, len(s.order))
	for i, id := range s.order {
		position[id] = i
	}

	// Kahn's algorithm; the ready set is a min-heap on insertion position.
	inDegree := make(map[string]int, len(s.order))
	ready := &positionHeap{}
	for i, id := range s.order {
		inDegree[id] = len(s.funcs[id].Dependencies)
		if inDegree[id] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(s.order))
	for ready.Len() > 0 {
		id := s.order[heap.Pop(ready).(int)]
		out = append(out, id)
		for _, dependent := range s.funcs[id].CalledBy {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				heap.Push(ready, position[dependent])
			}
		}
	}
	return out, nil
}

// restrictOrder filters a full topological order down to the members of keep.
func restrictOrder(order []string, keep map[string]bool) []string {
	out := make([]string, 0, len(keep))
	for _, id := range order {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

type positionHeap []int

func (h positionHeap) Len() int           { return len(h) }
func (h positionHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h positionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
