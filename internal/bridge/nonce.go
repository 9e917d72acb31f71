package bridge

import (
	"sync"
	"time"
)

// NonceSource hands out burn nonces. The message transmitter rejects
// nonce reuse, so values must be unique per source account and only
// ever move forward.
type NonceSource struct {
	mu   sync.Mutex
	last map[string]uint64
}

func NewNonceSource() *NonceSource {
	return &NonceSource{last: make(map[string]uint64)}
}

// Next returns a nonce strictly greater than any previously issued for
// the account. Microsecond time seeds the sequence so restarts do not
// collide with earlier runs.
func (s *NonceSource) Next(account string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := uint64(time.Now().UnixMicro())
	if prev, ok := s.last[account]; ok && nonce <= prev {
		nonce = prev + 1
	}
	s.last[account] = nonce
	return nonce
}
