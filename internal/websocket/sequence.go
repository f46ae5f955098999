package websocket

import (
	"sync"
	"sync/atomic"
)

// sequencer numbers the messages of each topic from 1.
type sequencer struct {
	seqs sync.Map // map[string]*uint64
}

func (s *sequencer) next(topic string) uint64 {
	v, _ := s.seqs.LoadOrStore(topic, new(uint64))
	return atomic.AddUint64(v.(*uint64), 1)
}
