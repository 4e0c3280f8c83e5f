package graph

import "slices"

// DetectCycles returns, in insertion order, every function that takes part in
// at least one dependency cycle. A function that lists itself is a cycle of
// one.
func (s *Store) DetectCycles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.detectCycles()
}

// DetectDangling returns every dependency or uses reference naming an entity
// absent from the store.
func (s *Store) DetectDangling() []DanglingRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.detectDangling()
}

// Validate returns an *InvalidGraphError when the graph has cycles or
// dangling references, nil otherwise.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.validate()
}

func (s *state) validate() error {
	cycles := s.detectCycles()
	dangling := s.detectDangling()
	if len(cycles) == 0 && len(dangling) == 0 {
		return nil
	}
	return &InvalidGraphError{Cycles: cycles, Dangling: dangling}
}

func (s *state) detectDangling() []DanglingRef {
	var out []DanglingRef
	for _, id := range s.order {
		f := s.funcs[id]
		for _, dep := range f.Dependencies {
			if _, ok := s.funcs[dep]; !ok {
				out = append(out, DanglingRef{From: id, Kind: RefDependency, Target: dep})
			}
		}
		for _, name := range f.Uses {
			if _, ok := s.ds[name]; !ok {
				out = append(out, DanglingRef{From: id, Kind: RefUses, Target: name})
			}
		}
	}
	return out
}

// tarjanFrame is one level of the explicit DFS stack.
type tarjanFrame struct {
	node string
	next int
}

// detectCycles runs Tarjan's strongly connected components algorithm with an
// explicit stack, so graph depth never touches the goroutine stack.
func (s *state) detectCycles() []string {
	index := make(map[string]int, len(s.order))
	lowlink := make(map[string]int, len(s.order))
	onStack := make(map[string]bool, len(s.order))
	var stack []string
	counter := 0
	inCycle := make(map[string]bool)

	visit := func(v string) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
	}

	for _, root := range s.order {
		if _, seen := index[root]; seen {
			continue
		}
		visit(root)
		frames := []tarjanFrame{{node: root}}

		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			v := top.node
			deps := s.funcs[v].Dependencies

			if top.next < len(deps) {
				w := deps[top.next]
				top.next++
				if _, ok := s.funcs[w]; !ok {
					continue
				}
				if w == v {
					inCycle[v] = true
					continue
				}
				if _, seen := index[w]; !seen {
					visit(w)
					frames = append(frames, tarjanFrame{node: w})
				} else if onStack[w] {
					lowlink[v] = min(lowlink[v], index[w])
				}
				continue
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				lowlink[parent] = min(lowlink[parent], lowlink[v])
			}

			if lowlink[v] == index[v] {
				var scc []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					scc = append(scc, w)
					if w == v {
						break
					}
				}
				if len(scc) > 1 {
					for _, w := range scc {
						inCycle[w] = true
					}
				}
			}
		}
	}

	var out []string
	for _, id := range s.order {
		if inCycle[id] {
			out = append(out, id)
		}
	}
	return slices.Clip(out)
}
