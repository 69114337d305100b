package record

// IDSet is a set of identifiers that remembers insertion order
type IDSet struct {
	order []string
	seen  map[string]struct{}
}

// NewIDSet creates an empty set
func NewIDSet() *IDSet {
	return &IDSet{seen: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new
func (s *IDSet) Add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Len returns the number of distinct ids
func (s *IDSet) Len() int { return len(s.order) }

// Values returns the ids in insertion order
func (s *IDSet) Values() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
