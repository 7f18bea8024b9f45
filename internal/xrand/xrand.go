package xrand

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

type Rand interface {
	Int64(max int64) int64
	Int(max int) int
	Float64() float64
}

type r struct {
	m    *sync.Mutex
	seed int64

	r *rand.Rand
}

type option func(r *r)

func WithLock() option {
	return func(r *r) {
		r.m = &sync.Mutex{}
	}
}

func WithSeed(seed int64) option {
	return func(r *r) {
		r.seed = seed
	}
}

func New(opts ...option) Rand {
	r := &r{
		seed: time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(r)
	}
	//nolint:gosec
	r.r = rand.New(rand.NewSource(r.seed))

	return r
}

func (r *r) lock() func() {
	if r.m == nil {
		return func() {}
	}
	r.m.Lock()

	return r.m.Unlock
}

func (r *r) Int64(max int64) int64 {
	if max <= 0 {
		return 0
	}
	defer r.lock()()

	return r.r.Int63n(max)
}

func (r *r) Int(max int) int {
	return int(r.Int64(int64(max)))
}

// Float64 returns a number in [0.0,1.0).
func (r *r) Float64() float64 {
	defer r.lock()()

	return math.Min(r.r.Float64(), math.Nextafter(1, 0))
}
