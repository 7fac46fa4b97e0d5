package mixer

// table is an immutable snapshot of registered sources. Writers build
// a new table and publish it atomically; the real-time consumer
// dereferences one snapshot per cycle and never observes a partially
// constructed one.
type table struct {
	sources map[Source]*source
	list    []*source
}

func emptyTable() *table {
	return &table{sources: map[Source]*source{}}
}

func (t *table) lookup(id Source) *source {
	return t.sources[id]
}

// with returns a new table with s added or replacing an entry with the
// same id.
func (t *table) with(s *source) *table {
	n := &table{
		sources: make(map[Source]*source, len(t.sources)+1),
		list:    make([]*source, 0, len(t.list)+1),
	}
	for id, old := range t.sources {
		if id == s.id {
			continue
		}
		n.sources[id] = old
		n.list = append(n.list, old)
	}
	n.sources[s.id] = s
	n.list = append(n.list, s)
	return n
}

// without returns a new table with the source removed.
func (t *table) without(id Source) *table {
	n := &table{
		sources: make(map[Source]*source, len(t.sources)),
		list:    make([]*source, 0, len(t.list)),
	}
	for sid, s := range t.sources {
		if sid == id {
			continue
		}
		n.sources[sid] = s
		n.list = append(n.list, s)
	}
	return n
}
