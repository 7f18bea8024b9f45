package session

import (
	"context"
	"sync/atomic"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// Session is a server-side context for transactions. Regular sessions live in
// the pool, the multiplexed one is owned by the Manager for its lifetime.
type Session struct {
	name        string
	multiplexed bool
	createTime  time.Time

	client Client
	meta   *meta.Meta
	clock  clockwork.Clock

	lastUse atomic.Int64
	status  atomic.Value
}

func newSession(pb *spannerpb.Session, client Client, m *meta.Meta, clock clockwork.Clock) *Session {
	s := &Session{
		name:        pb.GetName(),
		multiplexed: pb.GetMultiplexed(),
		createTime:  clock.Now(),
		client:      client,
		meta:        m,
		clock:       clock,
	}
	if ct := pb.GetCreateTime(); ct != nil && ct.IsValid() {
		s.createTime = ct.AsTime()
	}
	s.lastUse.Store(s.createTime.UnixNano())
	s.status.Store(StatusIdle)

	return s
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) Multiplexed() bool {
	return s.multiplexed
}

func (s *Session) CreateTime() time.Time {
	return s.createTime
}

func (s *Session) LastUseTime() time.Time {
	return time.Unix(0, s.lastUse.Load())
}

// MarkUsed records an RPC sent on the session.
func (s *Session) MarkUsed() {
	s.lastUse.Store(s.clock.Now().UnixNano())
}

func (s *Session) Status() Status {
	status, _ := s.status.Load().(Status)
	if status == "" {
		return StatusUnknown
	}

	return status
}

func (s *Session) setStatus(status Status) {
	s.status.Store(status)
}

func (s *Session) IsAlive() bool {
	switch s.Status() {
	case StatusIdle, StatusInUse:
		return true
	default:
		return false
	}
}

// Check inspects the error of an RPC sent on the session. A session the server
// reports as not found is never handed out again.
func (s *Session) Check(err error) {
	if xerrors.IsSessionNotFound(err) {
		s.setStatus(StatusNotFound)
	}
}

// Ping refreshes the session on the server side.
func (s *Session) Ping(ctx context.Context) error {
	ctx = s.meta.Context(ctx, s.meta.NextRequestID())
	_, err := s.client.GetSession(ctx, &spannerpb.GetSessionRequest{Name: s.name})
	if err != nil {
		err = xerrors.Transport(err)
		if xerrors.IsNotFound(err) {
			s.setStatus(StatusNotFound)
		}

		return xerrors.WithStackTrace(err)
	}
	s.MarkUsed()

	return nil
}

// Close deletes a regular session. The multiplexed session is only dropped locally.
func (s *Session) Close(ctx context.Context) error {
	status := s.Status()
	if status == StatusClosed || status == StatusClosing {
		return nil
	}
	s.setStatus(StatusClosing)
	defer s.setStatus(StatusClosed)

	if s.multiplexed || status == StatusNotFound {
		return nil
	}

	ctx = s.meta.Context(ctx, s.meta.NextRequestID())
	_, err := s.client.DeleteSession(ctx, &spannerpb.DeleteSessionRequest{Name: s.name})
	if err != nil && !xerrors.IsNotFound(xerrors.Transport(err)) {
		return xerrors.WithStackTrace(xerrors.Transport(err))
	}

	return nil
}
