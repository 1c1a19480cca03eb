package presence

import (
	"hash/fnv"
	"sync"
)

// stripedLocks 按 (ticket, event) 分段加锁，同一票据的请求串行执行
type stripedLocks struct {
	stripes []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n <= 0 {
		n = 64
	}
	return &stripedLocks{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLocks) lock(ticketID, eventID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(eventID))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
