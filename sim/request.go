package sim

// Request is one unit of work flowing from a client through the load
// balancer to a replica. WithOptional marks whether the replica executes
// the optional (brownout-dimmable) part of the response.
type Request struct {
	ID           string
	WithOptional bool
	Arrival      float64
	Departure    float64

	// remaining service time, decremented as the replica's processor-sharing
	// scheduler runs the request
	remaining float64

	// OnReply is invoked exactly once, when the request completes.
	OnReply func(req *Request)
}
