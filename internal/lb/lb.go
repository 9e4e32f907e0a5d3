package lb

import (
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

// Balancer orders upstream subscription mirrors for one request.
type Balancer interface {
	// Plan returns every healthy mirror once: the smooth-WRR pick first,
	// then the rest by weight. It is empty when every mirror is cooling down.
	Plan() []Endpoint
}

type Endpoint interface {
	URL() *url.URL
	Feedback(success bool)
}

// Options tune passive health.
type Options struct {
	FailThreshold int           // consecutive failures before a mirror is skipped
	Cooldown      time.Duration // how long a failed mirror is skipped
}

func DefaultOptions() Options {
	return Options{FailThreshold: 3, Cooldown: 30 * time.Second}
}

type smoothWRR struct {
	mu    sync.Mutex
	opts  Options
	peers []*peer
	now   func() time.Time
}

type peer struct {
	url           *url.URL
	weight        int
	currentWeight int

	// Passive health
	fails     int
	skipUntil time.Time
}

func NewSmoothWRR(sources []model.Source, opts Options) Balancer {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultOptions().FailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultOptions().Cooldown
	}
	peers := make([]*peer, len(sources))
	for i, s := range sources {
		w := s.Weight
		if w <= 0 {
			w = 1
		}
		peers[i] = &peer{
			url:    s.URL,
			weight: w,
		}
	}
	return &smoothWRR{peers: peers, opts: opts, now: time.Now}
}

// Plan takes one snapshot under the lock, so concurrent requests cannot
// starve each other of untried mirrors.
func (b *smoothWRR) Plan() []Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	best := b.pick(now)
	if best == nil {
		return nil
	}
	rest := make([]*peer, 0, len(b.peers)-1)
	for _, p := range b.peers {
		if p != best && p.healthy(now) {
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].weight > rest[j].weight })

	plan := make([]Endpoint, 0, 1+len(rest))
	plan = append(plan, &peerEndpoint{p: best, b: b})
	for _, p := range rest {
		plan = append(plan, &peerEndpoint{p: p, b: b})
	}
	return plan
}

func (p *peer) healthy(now time.Time) bool {
	return p.skipUntil.IsZero() || !now.Before(p.skipUntil)
}

// pick advances the smooth-WRR state; b.mu must be held.
func (b *smoothWRR) pick(now time.Time) *peer {
	var best *peer
	total := 0

	for _, p := range b.peers {
		if !p.healthy(now) {
			continue
		}
		p.currentWeight += p.weight
		total += p.weight
		if best == nil || p.currentWeight > best.currentWeight {
			best = p
		}
	}
	if best != nil {
		best.currentWeight -= total
	}
	return best
}

type peerEndpoint struct {
	p *peer
	b *smoothWRR
}

func (e *peerEndpoint) URL() *url.URL {
	return e.p.url
}

func (e *peerEndpoint) Feedback(success bool) {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()

	if success {
		e.p.fails = 0
		e.p.skipUntil = time.Time{}
		return
	}
	e.p.fails++
	if e.p.fails >= e.b.opts.FailThreshold {
		e.p.skipUntil = e.b.now().Add(e.b.opts.Cooldown)
	}
}
