package tuner

import "sync"

const defaultSubscriberBuffer = 16

// subscribers fans snapshots out to channels without blocking the sender.
type subscribers struct {
	buffer int

	mu     sync.Mutex
	next   uint64
	chans  map[uint64]chan Snapshot
	closed bool
}

func newSubscribers(buffer int) subscribers {
	return subscribers{buffer: buffer, chans: make(map[uint64]chan Snapshot)}
}

// add registers a channel primed with current. When the session is already
// closed the returned channel is closed after current.
func (s *subscribers) add(current Snapshot, sessionClosed bool) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, s.buffer)
	ch <- current

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || sessionClosed {
		close(ch)
		return ch, func() {}
	}

	s.next++
	id := s.next
	s.chans[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.chans[id]; ok {
		delete(s.chans, id)
		close(ch)
	}
}

// broadcast delivers snap to every subscriber. A full buffer loses its
// oldest snapshot, so the newest state always reaches a slow reader.
func (s *subscribers) broadcast(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		for {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.chans {
		delete(s.chans, id)
		close(ch)
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}
