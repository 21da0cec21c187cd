package liststate

// Selection tracks checked rows for bulk actions. It keeps insertion order
// and ignores duplicates. The zero value is ready to use.
type Selection struct {
	order []string
	set   map[string]struct{}
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{}
	for _, id := range ids {
		s.Set(id, true)
	}
	return s
}

func (s *Selection) Set(id string, selected bool) {
	if id == "" {
		return
	}
	if s.set == nil {
		s.set = make(map[string]struct{})
	}
	_, exists := s.set[id]
	switch {
	case selected && !exists:
		s.set[id] = struct{}{}
		s.order = append(s.order, id)
	case !selected && exists:
		delete(s.set, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// SelectAll replaces the selection with ids, or clears it when selected is
// false.
func (s *Selection) SelectAll(ids []string, selected bool) {
	s.Clear()
	if !selected {
		return
	}
	for _, id := range ids {
		s.Set(id, true)
	}
}

func (s *Selection) Has(id string) bool {
	_, ok := s.set[id]
	return ok
}

func (s *Selection) Len() int { return len(s.order) }

func (s *Selection) IDs() []string {
	return append([]string(nil), s.order...)
}

func (s *Selection) Clear() {
	s.order = nil
	s.set = nil
}
