package peernetic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRequestTimeout is delivered to a pending Request when it is not
// answered before the host's configured request timeout elapses.
var ErrRequestTimeout = fmt.Errorf("request timeout")

// pendingRequest tracks one outstanding Host.Request call awaiting a reply
// from a destination address under the synthetic "requests:<id>" namespace.
type pendingRequest struct {
	id       int64
	response chan requestResponse
	sentAt   int64
}

type requestResponse struct {
	payload any
	err     error
}

const requestShards = 64

type requestShard struct {
	mu sync.Mutex
	m  map[int64]*pendingRequest
}

// RequestManager correlates outgoing Host.Request calls with their
// eventual reply, keyed by a monotonically increasing request ID. Sharded
// across 64 buckets so concurrent callers (the Host's public API is called
// from arbitrary external goroutines, unlike the single-threaded actor
// dispatch loop) don't contend on one mutex.
//
// Grounded directly on theatre's request.go RequestManager — same sharding
// constant, same Create/Resolve/RemoveExpired/FailAll shape — adapted
// from theatre's Ref-addressed Request/Response pair to this fabric's
// Address-addressed Message/error pair.
type RequestManager struct {
	shards [requestShards]requestShard
	nextID int64
	clock  Clock
}

// NewRequestManager constructs an empty RequestManager. clock supplies the
// notion of "now" used for timeout bookkeeping, so that under the simulator
// timeouts advance with the virtual clock rather than wall time.
func NewRequestManager(clock Clock) *RequestManager {
	rm := &RequestManager{clock: clock}
	for i := range rm.shards {
		rm.shards[i].m = make(map[int64]*pendingRequest)
	}
	return rm
}

func (rm *RequestManager) shard(id int64) *requestShard {
	return &rm.shards[id&(requestShards-1)]
}

// Create allocates a new pending request and registers it. The returned
// address is where the eventual reply must be sent.
func (rm *RequestManager) Create() (reqAddr Address, wait func() (any, error)) {
	id := atomic.AddInt64(&rm.nextID, 1)
	req := &pendingRequest{
		id:       id,
		response: make(chan requestResponse, 1),
		sentAt:   rm.clock.Now().UnixNano(),
	}
	s := rm.shard(id)
	s.mu.Lock()
	s.m[id] = req
	s.mu.Unlock()

	reqAddr = MustAddress("requests", fmt.Sprintf("%d", id))
	wait = func() (any, error) {
		defer rm.remove(id)
		res := <-req.response
		return res.payload, res.err
	}
	return reqAddr, wait
}

// Resolve delivers payload to the pending request identified by reqAddr
// (the second element of a "requests:<id>" address). It reports whether a
// matching pending request was found.
func (rm *RequestManager) Resolve(reqAddr Address, payload any) bool {
	id, ok := parseRequestID(reqAddr)
	if !ok {
		return false
	}
	s := rm.shard(id)
	s.mu.Lock()
	req, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	req.response <- requestResponse{payload: payload}
	return true
}

func (rm *RequestManager) remove(id int64) {
	s := rm.shard(id)
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

// RemoveExpired fails and removes every pending request older than timeout,
// measured against the manager's Clock. It returns the number removed.
func (rm *RequestManager) RemoveExpired(timeout time.Duration) int {
	expired := 0
	cutoff := rm.clock.Now().UnixNano() - timeout.Nanoseconds()
	for i := range rm.shards {
		s := &rm.shards[i]
		s.mu.Lock()
		for id, req := range s.m {
			if req.sentAt < cutoff {
				delete(s.m, id)
				req.response <- requestResponse{err: ErrRequestTimeout}
				expired++
			}
		}
		s.mu.Unlock()
	}
	return expired
}

// FailAll fails every pending request with err and removes them. Used when
// a Host is stopping and no further replies will ever arrive.
func (rm *RequestManager) FailAll(err error) {
	for i := range rm.shards {
		s := &rm.shards[i]
		s.mu.Lock()
		for id, req := range s.m {
			req.response <- requestResponse{err: err}
			delete(s.m, id)
		}
		s.mu.Unlock()
	}
}

func parseRequestID(reqAddr Address) (int64, bool) {
	if reqAddr.Size() != 2 || reqAddr.Element(0) != "requests" {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(reqAddr.Element(1), "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
