package extract

// registry owns every section created during one scan. Sections are
// addressed by their index in the arena; finished sections are listed once,
// in the order they were first registered.
type registry struct {
	sections []*section
	byName   map[string]int
	order    []int
	listed   []bool
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]int)}
}

func (r *registry) add(s *section) int {
	r.sections = append(r.sections, s)
	r.listed = append(r.listed, false)
	return len(r.sections) - 1
}

func (r *registry) at(i int) *section {
	return r.sections[i]
}

// lookup finds a registered section by exact filename. The section keeps
// the codec of the block that created it.
func (r *registry) lookup(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	i, ok := r.byName[name]
	return i, ok
}

// register lists section i in the output. Registering twice is a no-op.
func (r *registry) register(i int) {
	if r.listed[i] {
		return
	}
	r.listed[i] = true
	r.order = append(r.order, i)

	s := r.sections[i]
	if s.filename == "" {
		return
	}
	if _, ok := r.byName[s.filename]; !ok {
		r.byName[s.filename] = i
	}
}

func (r *registry) registered() []*section {
	out := make([]*section, 0, len(r.order))
	for _, i := range r.order {
		out = append(out, r.sections[i])
	}
	return out
}
