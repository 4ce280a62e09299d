// Client models: an open-loop Poisson source and closed-loop think-time
// clients. Both record response times and optional-content completions for
// the final report.

package sim

import (
	"fmt"
	"math/rand"
)

// ClientStats accumulates what the final report needs from a client.
type ClientStats struct {
	ResponseTimes         []float64
	CompletedWithOptional int
}

// OpenLoopClient issues requests at a Poisson rate, independent of replies.
// The rate starts at zero; SetRate (usually driven by a scenario step)
// activates it.
type OpenLoopClient struct {
	Stats ClientStats

	kernel *Kernel
	rng    *rand.Rand
	lb     *LoadBalancer

	rate    float64
	pending *EventHandle // next arrival, if the client is active
	nextSeq int64
}

// NewOpenLoopClient creates an idle open-loop client.
func NewOpenLoopClient(k *Kernel, rng *rand.Rand, lb *LoadBalancer) *OpenLoopClient {
	return &OpenLoopClient{kernel: k, rng: rng, lb: lb}
}

// SetRate changes the arrival rate (requests per time unit). A pending
// arrival is rescheduled to a delay drawn at the new rate; a rate of zero
// cancels it and stops arrivals.
func (c *OpenLoopClient) SetRate(rate float64) {
	c.rate = rate
	switch {
	case rate <= 0:
		c.kernel.Cancel(c.pending)
		c.pending = nil
	case c.pending != nil:
		c.pending = c.kernel.Reschedule(c.pending, c.rng.ExpFloat64()/rate)
	default:
		c.pending = c.kernel.Add(c.rng.ExpFloat64()/rate, c.arrive)
	}
}

func (c *OpenLoopClient) arrive() {
	c.pending = nil
	if c.rate <= 0 {
		return
	}
	c.issue()
	c.pending = c.kernel.Add(c.rng.ExpFloat64()/c.rate, c.arrive)
}

func (c *OpenLoopClient) issue() {
	start := c.kernel.Now()
	seq := c.nextSeq
	c.nextSeq++
	c.lb.Route(&Request{
		ID: fmt.Sprintf("open-%d", seq),
		OnReply: func(req *Request) {
			c.Stats.ResponseTimes = append(c.Stats.ResponseTimes, c.kernel.Now()-start)
			if req.WithOptional {
				c.Stats.CompletedWithOptional++
			}
		},
	})
}

// ClosedLoopClient keeps exactly one request outstanding: issue, wait for
// the reply, think for an exponentially distributed time, repeat.
type ClosedLoopClient struct {
	Stats ClientStats

	kernel *Kernel
	rng    *rand.Rand
	lb     *LoadBalancer

	name      string
	thinkTime float64
	active    bool
	nextSeq   int64
}

// NewClosedLoopClient creates a closed-loop client and issues its first
// request immediately.
func NewClosedLoopClient(k *Kernel, rng *rand.Rand, lb *LoadBalancer, id int, meanThinkTime float64) *ClosedLoopClient {
	c := &ClosedLoopClient{
		kernel:    k,
		rng:       rng,
		lb:        lb,
		name:      fmt.Sprintf("closed-%d", id),
		thinkTime: meanThinkTime,
		active:    true,
	}
	c.issue()
	return c
}

// Deactivate stops the client after its current request, if any, completes.
func (c *ClosedLoopClient) Deactivate() {
	c.active = false
}

func (c *ClosedLoopClient) issue() {
	if !c.active {
		return
	}
	start := c.kernel.Now()
	seq := c.nextSeq
	c.nextSeq++
	c.lb.Route(&Request{
		ID: fmt.Sprintf("%s-%d", c.name, seq),
		OnReply: func(req *Request) {
			c.Stats.ResponseTimes = append(c.Stats.ResponseTimes, c.kernel.Now()-start)
			if req.WithOptional {
				c.Stats.CompletedWithOptional++
			}
			c.kernel.Add(c.rng.ExpFloat64()*c.thinkTime, c.issue)
		},
	})
}
