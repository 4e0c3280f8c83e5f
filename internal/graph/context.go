package graph

import "github.com/starford/taskgraph/internal/models"

// Context is everything needed to implement one function.
type Context struct {
	Target models.FunctionDef `json:"target"`
	// Dependencies is the transitive closure of Target's dependencies in
	// implementation order.
	Dependencies   []models.FunctionDef      `json:"dependencies"`
	DataStructures []models.DataStructureDef `json:"data_structures"`
}

// DependencyIDs returns the identifiers of c.Dependencies.
func (c Context) DependencyIDs() []string {
	ids := make([]string, len(c.Dependencies))
	for i, d := range c.Dependencies {
		ids[i] = d.ID
	}
	return ids
}

// MinimalContext returns the target function, its transitive dependencies and
// the data structures any of them use.
func (s *Store) MinimalContext(id string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.minimalContext(id)
}

func (s *state) minimalContext(id string) (Context, error) {
	target, ok := s.funcs[id]
	if !ok {
		return Context{}, &UnknownFunctionError{ID: id}
	}
	order, err := s.computeOrder()
	if err != nil {
		return Context{}, err
	}

	closure := make(map[string]bool)
	queue := append([]string(nil), target.Dependencies...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if closure[cur] {
			continue
		}
		closure[cur] = true
		queue = append(queue, s.funcs[cur].Dependencies...)
	}

	ctx := Context{
		Target:         target.Clone(),
		Dependencies:   make([]models.FunctionDef, 0, len(closure)),
		DataStructures: []models.DataStructureDef{},
	}
	used := make(map[string]bool)
	for _, name := range target.Uses {
		used[name] = true
	}
	for _, dep := range restrictOrder(order, closure) {
		f := s.funcs[dep]
		ctx.Dependencies = append(ctx.Dependencies, f.Clone())
		for _, name := range f.Uses {
			used[name] = true
		}
	}
	for _, name := range s.dsOrder {
		if used[name] {
			ctx.DataStructures = append(ctx.DataStructures, s.ds[name].Clone())
		}
	}
	return ctx, nil
}
