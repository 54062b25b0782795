package diskaio

import "sync"

// registry is an arena of in-flight request slots. Handles pack a slot
// index with a generation so a stale handle never resolves to a reused
// slot. Handle 0 is never issued.
type registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

type slot struct {
	gen uint32
	req *Request
}

func newRegistry(capacity int) *registry {
	return &registry{
		slots: make([]slot, 0, capacity),
		free:  make([]uint32, 0, capacity),
	}
}

func packHandle(gen, idx uint32) uint64 { return uint64(gen)<<32 | uint64(idx) }

func unpackHandle(h uint64) (gen, idx uint32) { return uint32(h >> 32), uint32(h) }

func (r *registry) add(req *Request) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.req = req
	r.live++
	return packHandle(s.gen, idx)
}

func (r *registry) lookup(h uint64) *Request {
	gen, idx := unpackHandle(h)
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(idx) >= len(r.slots) {
		return nil
	}
	s := r.slots[idx]
	if s.gen != gen || s.req == nil {
		return nil
	}
	return s.req
}

// remove frees the slot for h. It reports false if h was already removed.
func (r *registry) remove(h uint64) bool {
	gen, idx := unpackHandle(h)
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(idx) >= len(r.slots) {
		return false
	}
	s := &r.slots[idx]
	if s.gen != gen || s.req == nil {
		return false
	}
	s.req = nil
	r.free = append(r.free, idx)
	r.live--
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// inState returns live requests currently in state.
func (r *registry) inState(state RequestState) []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Request
	for _, s := range r.slots {
		if s.req != nil && s.req.State() == state {
			out = append(out, s.req)
		}
	}
	return out
}
