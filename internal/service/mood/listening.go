package mood

// Listening reports whether any analysis is in flight. Sessions sharing a
// profile share the flag, so it stays true until the last one finishes.
func (m *Manager) Listening() bool {
	return m.inflight.Load() > 0
}

// Subscribe delivers listening transitions. Slow subscribers only see the
// latest value. cancel must be called to release the channel.
func (m *Manager) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once bool
	cancel := func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subs, id)
		close(ch)
	}
	return ch, cancel
}

func (m *Manager) beginListening() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.inflight.Add(1) == 1 {
		m.publish(true)
	}
}

func (m *Manager) endListening() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.inflight.Add(-1) == 0 {
		m.publish(false)
	}
}

// caller holds m.subsMu.
func (m *Manager) publish(v bool) {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
