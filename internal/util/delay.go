package util

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

// DelayGen draws exponentially distributed service delays. It is safe for
// concurrent use.
type DelayGen struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewDelayGen seeds a ChaCha8 source. A zero seed uses the current time.
func NewDelayGen(seed uint64) *DelayGen {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var key [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(key[i*8:], seed+uint64(i)*0x9e3779b97f4a7c15)
	}

	return &DelayGen{
		r: rand.New(rand.NewChaCha8(key)),
	}
}

// Exp returns a delay with rate mu, i.e. mean 1/mu seconds.
func (g *DelayGen) Exp(mu float64) time.Duration {
	g.mu.Lock()
	x := g.r.ExpFloat64()
	g.mu.Unlock()

	return time.Duration(x / mu * float64(time.Second))
}
