package dispatch

// ID is a dispatch identifier: an opaque handle to one execution, returned
// by Client.Dispatch and carried in CallResult.DispatchID. Treat it as an
// opaque string; the scheduler owns its format (original_source/id.py).
type ID string

// Valid reports whether id looks like a dispatch identifier the scheduler
// could have issued, rather than e.g. an empty or obviously malformed
// string passed in by mistake.
func (id ID) Valid() bool {
	return id != ""
}

func (id ID) String() string {
	return string(id)
}
