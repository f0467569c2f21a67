package call

// bucket names the collection a call currently occupies.
type bucket int

const (
	bucketNone bucket = iota
	bucketIncoming
	bucketOutgoing
	bucketActive
)

func (b bucket) String() string {
	switch b {
	case bucketIncoming:
		return "incoming"
	case bucketOutgoing:
		return "outgoing"
	case bucketActive:
		return "active"
	default:
		return "none"
	}
}

// registry partitions calls into three disjoint collections. A call id
// appears in at most one collection at any instant; transitions move the
// entry, never duplicate it. Not goroutine-safe; callers hold the
// manager's lock.
type registry struct {
	incoming map[string]*Call
	outgoing map[string]*Call
	active   map[string]*Call
}

func newRegistry() *registry {
	return &registry{
		incoming: make(map[string]*Call),
		outgoing: make(map[string]*Call),
		active:   make(map[string]*Call),
	}
}

func (r *registry) coll(b bucket) map[string]*Call {
	switch b {
	case bucketIncoming:
		return r.incoming
	case bucketOutgoing:
		return r.outgoing
	case bucketActive:
		return r.active
	default:
		return nil
	}
}

// put registers c in b. Returns false if the id already exists anywhere;
// the disjointness invariant is never silently violated.
func (r *registry) put(b bucket, c *Call) bool {
	if _, found := r.find(c.ID); found != bucketNone {
		return false
	}
	r.coll(b)[c.ID] = c
	return true
}

// find locates a call in whichever collection holds it.
func (r *registry) find(id string) (*Call, bucket) {
	if c, ok := r.incoming[id]; ok {
		return c, bucketIncoming
	}
	if c, ok := r.outgoing[id]; ok {
		return c, bucketOutgoing
	}
	if c, ok := r.active[id]; ok {
		return c, bucketActive
	}
	return nil, bucketNone
}

// get returns the call only if it sits in the expected collection.
func (r *registry) get(b bucket, id string) (*Call, bool) {
	c, ok := r.coll(b)[id]
	return c, ok
}

// move relocates a call between collections.
func (r *registry) move(id string, from, to bucket) bool {
	c, ok := r.coll(from)[id]
	if !ok {
		return false
	}
	delete(r.coll(from), id)
	r.coll(to)[c.ID] = c
	return true
}

// take removes a call from whichever collection holds it and returns it.
func (r *registry) take(id string) (*Call, bool) {
	c, b := r.find(id)
	if b == bucketNone {
		return nil, false
	}
	delete(r.coll(b), id)
	return c, true
}

// all returns a snapshot of every registered call.
func (r *registry) all() []*Call {
	out := make([]*Call, 0, len(r.incoming)+len(r.outgoing)+len(r.active))
	for _, m := range []map[string]*Call{r.incoming, r.outgoing, r.active} {
		for _, c := range m {
			out = append(out, c)
		}
	}
	return out
}
