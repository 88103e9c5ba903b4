package server

import (
	"sync"

	"github.com/atomicobject/fswatchd/pkg/clockspec"
	"github.com/atomicobject/fswatchd/pkg/publisher"
	"github.com/atomicobject/fswatchd/pkg/query"
	"github.com/atomicobject/fswatchd/pkg/root"
)

// subscription is a live `subscribe` registration: a publisher subscription
// plus the goroutine that re-evaluates the query and pushes results to the
// owning session whenever the root's publisher wakes it, mirroring
// pkg/trigger.Trigger's wake/done pattern (subscriptions and triggers are
// both "re-run a query when the root changes," differing only in what
// happens with a match).
type subscription struct {
	name   string
	r      *root.Root
	q      *query.Query
	daemon clockspec.Daemon
	sess   *session

	sub  *publisher.Subscriber
	wake chan struct{}
	done chan struct{}

	mu        sync.Mutex
	stopped   bool
	lastClock string
}

func startSubscription(sess *session, r *root.Root, name string, q *query.Query, daemon clockspec.Daemon) *subscription {
	s := &subscription{
		name:      name,
		r:         r,
		q:         q,
		daemon:    daemon,
		sess:      sess,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		lastClock: r.Clock(),
	}
	s.sub = r.Publisher().Subscribe(func() {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	})
	go s.loop()
	return s
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.sub.Cancel()
	close(s.done)
}

func (s *subscription) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.evaluateAndPush()
	}
}

func (s *subscription) evaluateAndPush() {
	s.mu.Lock()
	since := s.lastClock
	s.mu.Unlock()

	resp, err := query.Evaluate(s.r.Tree(), s.daemon, s.r.Number, since, s.q, s.q.Expr)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.lastClock = resp.Clock
	s.mu.Unlock()

	if len(resp.Results) == 0 {
		return
	}

	payload := map[string]interface{}{
		"subscription":      s.name,
		"root":              s.r.Path,
		"clock":             resp.Clock,
		"is_fresh_instance": resp.IsFreshInstance,
		"files":             formatResults(resp.Results, s.q.Fields),
	}
	s.sess.send(payload)
}
