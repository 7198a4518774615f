package storage

import "sync"

// Memory keeps the whole torrent in a byte slice. It backs single-piece
// downloads and tests.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a zeroed in-memory store of length bytes.
func NewMemory(length int64) *Memory {
	return &Memory{data: make([]byte, length)}
}

// NewMemoryFrom wraps existing data, e.g. content to seed.
func NewMemoryFrom(data []byte) *Memory {
	return &Memory{data: data}
}

func (m *Memory) ReadBlock(b []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := checkRange(int64(len(m.data)), off, len(b)); err != nil {
		return 0, err
	}

	return copy(b, m.data[off:]), nil
}

func (m *Memory) WriteBlock(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRange(int64(len(m.data)), off, len(b)); err != nil {
		return 0, err
	}

	return copy(m.data[off:], b), nil
}

// Bytes returns a copy of the stored data.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)

	return out
}

func (m *Memory) Close() error {
	return nil
}
