package wsserver

import "sync"

// sessionTable is a concurrent map of live sessions keyed by connection ID.
// It must not be copied after first use.
type sessionTable struct {
	m sync.Map
}

// add stores s under its ID, replacing any previous session with that ID.
func (t *sessionTable) add(s *session) {
	t.m.Store(s.id, s)
}

// remove deletes the session with the given ID. Unknown IDs are a no-op.
func (t *sessionTable) remove(id string) {
	t.m.Delete(id)
}

// get returns the session for id, if it is still live.
func (t *sessionTable) get(id string) (*session, bool) {
	v, ok := t.m.Load(id)
	if !ok {
		return nil, false
	}

	return v.(*session), true
}

// each calls f for every live session until f returns false. Sessions added
// or removed during the walk may or may not be visited.
func (t *sessionTable) each(f func(s *session) bool) {
	t.m.Range(func(_, v any) bool {
		return f(v.(*session))
	})
}

// len counts the live sessions; it walks the whole table.
func (t *sessionTable) len() int {
	n := 0
	t.each(func(*session) bool {
		n++
		return true
	})

	return n
}
