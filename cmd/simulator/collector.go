package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"payment-relay/pkg/types"
)

// Collector matches responses to the requests the simulator sent. Duplicate
// and unknown responses are counted but do not affect the verdict tallies.
type Collector struct {
	mu       sync.Mutex
	sent     map[string]types.Request
	verdicts map[string]types.Status
	unknown  int
	dupes    int
	complete chan struct{}
	closed   bool
}

func NewCollector() *Collector {
	return &Collector{
		sent:     make(map[string]types.Request),
		verdicts: make(map[string]types.Status),
		complete: make(chan struct{}),
	}
}

func (c *Collector) Expect(req types.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[req.ID] = req
}

func (c *Collector) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sent, id)
}

func (c *Collector) Record(resp types.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sent[resp.ID]; !ok {
		c.unknown++
		return
	}
	if _, ok := c.verdicts[resp.ID]; ok {
		c.dupes++
		return
	}
	c.verdicts[resp.ID] = resp.Status
	c.checkComplete()
}

// Seal marks the end of publishing; Done closes once every sent request has
// a verdict.
func (c *Collector) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.checkComplete()
}

func (c *Collector) checkComplete() {
	select {
	case <-c.complete:
		return
	default:
	}
	if c.closed && len(c.verdicts) == len(c.sent) {
		close(c.complete)
	}
}

func (c *Collector) Done() <-chan struct{} { return c.complete }

type Summary struct {
	Sent      int
	Approved  int
	Rejected  int
	Missing   []string
	Unknown   int
	Duplicate int
	Elapsed   time.Duration
}

func (c *Collector) Summary(elapsed time.Duration) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{Sent: len(c.sent), Unknown: c.unknown, Duplicate: c.dupes, Elapsed: elapsed}
	for id := range c.sent {
		switch c.verdicts[id] {
		case types.StatusApproved:
			s.Approved++
		case types.StatusRejected:
			s.Rejected++
		default:
			s.Missing = append(s.Missing, id)
		}
	}
	return s
}

func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nSimulation finished in %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Sent:      %d\n", s.Sent)
	fmt.Fprintf(w, "Approved:  %d\n", s.Approved)
	fmt.Fprintf(w, "Rejected:  %d\n", s.Rejected)
	fmt.Fprintf(w, "Missing:   %d\n", len(s.Missing))
	if s.Unknown > 0 || s.Duplicate > 0 {
		fmt.Fprintf(w, "Ignored:   %d unknown, %d duplicate\n", s.Unknown, s.Duplicate)
	}
	for _, id := range s.Missing {
		fmt.Fprintf(w, "  no response for %s\n", id)
	}
}
