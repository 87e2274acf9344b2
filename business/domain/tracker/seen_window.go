package tracker

// SeenWindow is the set of already reported transaction hashes. It only keeps
// hashes whose logical time is within ltWindow of the watermark and never more
// than maxEntries of them. Anything evicted is at or below the watermark, so
// the logical time check still rejects it.
type SeenWindow struct {
	ltWindow   uint64
	maxEntries int

	m    map[string]uint64 // hash -> lt
	q    []seenItem        // insertion order
	head int               // pop index
}

type seenItem struct {
	hash string
	lt   uint64
}

func NewSeenWindow(ltWindow uint64, maxEntries int) *SeenWindow {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &SeenWindow{
		ltWindow:   ltWindow,
		maxEntries: maxEntries,
		m:          make(map[string]uint64),
	}
}

func (s *SeenWindow) Contains(hash string) bool {
	_, ok := s.m[hash]
	return ok
}

func (s *SeenWindow) Add(hash string, lt uint64) {
	if _, ok := s.m[hash]; ok {
		return
	}
	s.m[hash] = lt
	s.q = append(s.q, seenItem{hash: hash, lt: lt})
}

func (s *SeenWindow) Len() int {
	return len(s.m)
}

// Evict drops hashes that fell out of the window behind the watermark and
// trims the oldest insertions above the capacity. A zero maxEntries means no
// capacity limit.
func (s *SeenWindow) Evict(watermark uint64) {
	var cutoff uint64
	if watermark > s.ltWindow {
		cutoff = watermark - s.ltWindow
	}

	for s.head < len(s.q) {
		it := s.q[s.head]
		overCapacity := s.maxEntries > 0 && len(s.m) > s.maxEntries
		if it.lt >= cutoff && !overCapacity {
			break
		}
		delete(s.m, it.hash)
		s.head++
	}

	// compact, otherwise the queue grows forever
	if s.head > 4096 && s.head*2 > len(s.q) {
		newQ := make([]seenItem, 0, len(s.q)-s.head)
		newQ = append(newQ, s.q[s.head:]...)
		s.q = newQ
		s.head = 0
	}
}
