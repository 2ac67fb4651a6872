package resilience

import "sync"

// SingleFlight collapses concurrent calls sharing a key into one execution.
// The cache layer uses it so a cold beatmap hash triggers a single repository
// load no matter how many submissions race on it.
type SingleFlight struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	wg    sync.WaitGroup
	value any
	err   error
}

// Do runs fn once per key at a time. Callers arriving while a flight for the
// same key is active block until it lands and receive its result; the third
// return value reports whether the result came from another caller's flight.
func (g *SingleFlight) Do(key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.inflight == nil {
		g.inflight = make(map[string]*flight)
	}

	if f, ok := g.inflight[key]; ok {
		g.mu.Unlock()
		f.wg.Wait()
		return f.value, f.err, true
	}

	f := &flight{}
	f.wg.Add(1)
	g.inflight[key] = f
	g.mu.Unlock()

	f.value, f.err = fn()
	f.wg.Done()

	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()

	return f.value, f.err, false
}
