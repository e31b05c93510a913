// ABOUTME: In-memory durable log with consumer groups, redelivery, and retention
// ABOUTME: Backs standalone mode and all component tests without a NATS server

package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultAckWait = 30 * time.Second

// MemoryLog is an in-process Log. Messages survive consumer restarts but
// not process restarts; it is meant for standalone deployments and tests.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memStream
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{streams: make(map[string]*memStream)}
}

// EnsureStream creates the stream if needed; existing streams keep their
// messages and adopt the new limits.
func (l *MemoryLog) EnsureStream(_ context.Context, cfg Config) error {
	if cfg.Name == "" {
		return errors.New("stream name required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.streams[cfg.Name]; ok {
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		return nil
	}
	l.streams[cfg.Name] = newMemStream(cfg)
	return nil
}

// Publish appends to the stream owning the subject.
func (l *MemoryLog) Publish(_ context.Context, subject string, data []byte) error {
	l.mu.Lock()
	var target *memStream
	for _, s := range l.streams {
		for _, sub := range s.cfg.Subjects {
			if sub == subject {
				target = s
				break
			}
		}
		if target != nil {
			break
		}
	}
	l.mu.Unlock()

	if target == nil {
		return fmt.Errorf("no stream for subject %q", subject)
	}
	target.publish(subject, data)
	return nil
}

// Consume attaches a consumer to the named stream. Consumers sharing a
// durable name compete for messages; an empty durable gets a private
// replay-from-start view.
func (l *MemoryLog) Consume(_ context.Context, streamName string, cfg ConsumerConfig) (Consumer, error) {
	l.mu.Lock()
	s, ok := l.streams[streamName]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", streamName)
	}
	return s.consumer(cfg), nil
}

// Close is a no-op for the in-memory log.
func (l *MemoryLog) Close() error { return nil }

type memRecord struct {
	seq     uint64
	subject string
	data    []byte
	at      time.Time
}

type memStream struct {
	mu       sync.Mutex
	cfg      Config
	seq      uint64
	msgs     []*memRecord
	durables map[string]*memGroup
	waitCh   chan struct{}
}

// memGroup is the shared state of one logical consumer (durable or
// ephemeral): delivery counts, in-flight tracking, and the redelivery queue.
type memGroup struct {
	cfg        ConsumerConfig
	ackWait    time.Duration
	cursor     uint64
	inflight   map[uint64]time.Time
	redeliver  []uint64
	acked      map[uint64]struct{}
	terminated map[uint64]struct{}
	deliveries map[uint64]int
}

func newMemStream(cfg Config) *memStream {
	return &memStream{
		cfg:      cfg,
		durables: make(map[string]*memGroup),
		waitCh:   make(chan struct{}),
	}
}

func newMemGroup(cfg ConsumerConfig) *memGroup {
	ackWait := cfg.AckWait
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}
	return &memGroup{
		cfg:        cfg,
		ackWait:    ackWait,
		inflight:   make(map[uint64]time.Time),
		acked:      make(map[uint64]struct{}),
		terminated: make(map[uint64]struct{}),
		deliveries: make(map[uint64]int),
	}
}

func (s *memStream) publish(subject string, data []byte) {
	s.mu.Lock()
	s.seq++
	s.msgs = append(s.msgs, &memRecord{
		seq:     s.seq,
		subject: subject,
		data:    append([]byte(nil), data...),
		at:      time.Now(),
	})
	s.pruneLocked()
	ch := s.waitCh
	s.waitCh = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// pruneLocked enforces MaxMsgs and MaxAge, oldest first.
func (s *memStream) pruneLocked() {
	if s.cfg.MaxMsgs > 0 {
		for int64(len(s.msgs)) > s.cfg.MaxMsgs {
			s.msgs = s.msgs[1:]
		}
	}
	if s.cfg.MaxAge > 0 {
		cutoff := time.Now().Add(-s.cfg.MaxAge)
		for len(s.msgs) > 0 && s.msgs[0].at.Before(cutoff) {
			s.msgs = s.msgs[1:]
		}
	}
}

func (s *memStream) record(seq uint64) *memRecord {
	i := sort.Search(len(s.msgs), func(i int) bool { return s.msgs[i].seq >= seq })
	if i < len(s.msgs) && s.msgs[i].seq == seq {
		return s.msgs[i]
	}
	return nil
}

func (s *memStream) consumer(cfg ConsumerConfig) *memConsumer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var g *memGroup
	if cfg.Durable == "" {
		g = newMemGroup(cfg)
	} else {
		var ok bool
		g, ok = s.durables[cfg.Durable]
		if !ok {
			g = newMemGroup(cfg)
			s.durables[cfg.Durable] = g
		}
	}
	return &memConsumer{
		stream:   s,
		group:    g,
		inflight: make(map[uint64]struct{}),
	}
}

type memConsumer struct {
	stream *memStream
	group  *memGroup

	mu       sync.Mutex
	inflight map[uint64]struct{}
	stopped  bool
}

// Next delivers the oldest redeliverable or fresh message. It blocks until
// something is available, the ack-wait of an in-flight message expires, or
// ctx ends.
func (c *memConsumer) Next(ctx context.Context) (Msg, error) {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return nil, errors.New("consumer stopped")
		}
		c.mu.Unlock()

		s, g := c.stream, c.group
		s.mu.Lock()
		s.pruneLocked()
		c.expireInflightLocked()

		if rec, n := c.claimLocked(); rec != nil {
			s.mu.Unlock()
			return &memMsg{consumer: c, rec: rec, deliveries: n}, nil
		}
		ch := s.waitCh
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrNoMessages
			}
			return nil, ctx.Err()
		case <-ch:
		case <-time.After(g.ackWait / 2):
			// Re-check in-flight expiry even without new publishes.
		}
	}
}

// expireInflightLocked requeues in-flight messages whose ack-wait passed.
// Must be called with the stream lock held.
func (c *memConsumer) expireInflightLocked() {
	g := c.group
	now := time.Now()
	for seq, deadline := range g.inflight {
		if now.After(deadline) {
			delete(g.inflight, seq)
			g.redeliver = append(g.redeliver, seq)
		}
	}
}

// claimLocked picks the next deliverable message for this consumer's group,
// preferring the redelivery queue. Returns the record and the 1-based
// delivery count. Must be called with the stream lock held.
func (c *memConsumer) claimLocked() (*memRecord, int) {
	s, g := c.stream, c.group

	for len(g.redeliver) > 0 {
		seq := g.redeliver[0]
		g.redeliver = g.redeliver[1:]
		rec := s.record(seq)
		if rec == nil {
			continue // evicted by retention
		}
		if _, done := g.acked[seq]; done {
			continue
		}
		if _, done := g.terminated[seq]; done {
			continue
		}
		if g.cfg.MaxDeliver > 0 && g.deliveries[seq] >= g.cfg.MaxDeliver {
			g.terminated[seq] = struct{}{}
			continue
		}
		return c.deliverLocked(rec), g.deliveries[seq]
	}

	for _, rec := range s.msgs {
		if rec.seq <= g.cursor {
			continue
		}
		g.cursor = rec.seq
		if _, done := g.acked[rec.seq]; done {
			continue
		}
		return c.deliverLocked(rec), g.deliveries[rec.seq]
	}
	return nil, 0
}

func (c *memConsumer) deliverLocked(rec *memRecord) *memRecord {
	g := c.group
	g.deliveries[rec.seq]++
	g.inflight[rec.seq] = time.Now().Add(g.ackWait)
	c.mu.Lock()
	c.inflight[rec.seq] = struct{}{}
	c.mu.Unlock()
	return rec
}

// Stop releases the consumer and makes its unacknowledged messages
// immediately redeliverable to the rest of the group.
func (c *memConsumer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	seqs := make([]uint64, 0, len(c.inflight))
	for seq := range c.inflight {
		seqs = append(seqs, seq)
	}
	c.inflight = make(map[uint64]struct{})
	c.mu.Unlock()

	s, g := c.stream, c.group
	s.mu.Lock()
	for _, seq := range seqs {
		if _, ok := g.inflight[seq]; ok {
			delete(g.inflight, seq)
			g.redeliver = append(g.redeliver, seq)
		}
	}
	ch := s.waitCh
	s.waitCh = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

func (c *memConsumer) settle(seq uint64, fn func(g *memGroup)) error {
	s, g := c.stream, c.group
	s.mu.Lock()
	delete(g.inflight, seq)
	fn(g)
	ch := s.waitCh
	s.waitCh = make(chan struct{})
	s.mu.Unlock()
	close(ch)

	c.mu.Lock()
	delete(c.inflight, seq)
	c.mu.Unlock()
	return nil
}

type memMsg struct {
	consumer   *memConsumer
	rec        *memRecord
	deliveries int
}

func (m *memMsg) Subject() string { return m.rec.subject }
func (m *memMsg) Data() []byte    { return m.rec.data }
func (m *memMsg) Deliveries() int { return m.deliveries }

func (m *memMsg) Ack() error {
	return m.consumer.settle(m.rec.seq, func(g *memGroup) {
		g.acked[m.rec.seq] = struct{}{}
	})
}

func (m *memMsg) Nak() error {
	return m.consumer.settle(m.rec.seq, func(g *memGroup) {
		g.redeliver = append(g.redeliver, m.rec.seq)
	})
}

func (m *memMsg) Term() error {
	return m.consumer.settle(m.rec.seq, func(g *memGroup) {
		g.terminated[m.rec.seq] = struct{}{}
	})
}
