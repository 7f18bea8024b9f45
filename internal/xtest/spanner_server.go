package xtest

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const Database = "projects/p/instances/i/databases/d"

// Call is a request received by SpannerServer.
type Call struct {
	Method   string
	Request  proto.Message
	Metadata metadata.MD
}

// SpannerServer is an in-process Spanner data plane. Every On* hook replaces the
// default behaviour of the matching RPC. Hooks must be set before the server is used.
type SpannerServer struct {
	spannerpb.UnimplementedSpannerServer

	OnCreateSession       func(ctx context.Context, req *spannerpb.CreateSessionRequest) (*spannerpb.Session, error)
	OnBatchCreateSessions func(ctx context.Context, req *spannerpb.BatchCreateSessionsRequest) (*spannerpb.BatchCreateSessionsResponse, error)
	OnGetSession          func(ctx context.Context, req *spannerpb.GetSessionRequest) (*spannerpb.Session, error)
	OnBeginTransaction    func(ctx context.Context, req *spannerpb.BeginTransactionRequest) (*spannerpb.Transaction, error)
	OnExecuteSql          func(ctx context.Context, req *spannerpb.ExecuteSqlRequest) (*spannerpb.ResultSet, error)
	OnExecuteStreamingSql func(req *spannerpb.ExecuteSqlRequest, stream spannerpb.Spanner_ExecuteStreamingSqlServer) error
	OnExecuteBatchDml     func(ctx context.Context, req *spannerpb.ExecuteBatchDmlRequest) (*spannerpb.ExecuteBatchDmlResponse, error)
	OnStreamingRead       func(req *spannerpb.ReadRequest, stream spannerpb.Spanner_StreamingReadServer) error
	OnCommit              func(ctx context.Context, req *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error)
	OnRollback            func(ctx context.Context, req *spannerpb.RollbackRequest) error
	OnBatchWrite          func(req *spannerpb.BatchWriteRequest, stream spannerpb.Spanner_BatchWriteServer) error

	mu          sync.Mutex
	calls       []Call
	sessions    map[string]*spannerpb.Session
	sessionSeq  int
	txSeq       int
	partitionNo int
}

func NewSpannerServer() *SpannerServer {
	return &SpannerServer{
		sessions: make(map[string]*spannerpb.Session),
	}
}

func (s *SpannerServer) record(ctx context.Context, method string, req proto.Message) {
	md, _ := metadata.FromIncomingContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{
		Method:   method,
		Request:  proto.Clone(req),
		Metadata: md.Copy(),
	})
}

// Calls returns recorded calls of the method, or all calls when method is empty.
func (s *SpannerServer) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			calls = append(calls, c)
		}
	}

	return calls
}

// Requests returns typed requests of the method in arrival order.
func Requests[T proto.Message](s *SpannerServer, method string) []T {
	calls := s.Calls(method)
	reqs := make([]T, 0, len(calls))
	for _, c := range calls {
		if r, ok := c.Request.(T); ok {
			reqs = append(reqs, r)
		}
	}

	return reqs
}

func (s *SpannerServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func (s *SpannerServer) newSession(template *spannerpb.Session) *spannerpb.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionSeq++
	session := &spannerpb.Session{
		Name:        fmt.Sprintf("%s/sessions/s%d", Database, s.sessionSeq),
		Labels:      template.GetLabels(),
		CreatorRole: template.GetCreatorRole(),
		Multiplexed: template.GetMultiplexed(),
	}
	s.sessions[session.GetName()] = session

	return session
}

// NewTransaction returns a transaction with a fresh id.
func (s *SpannerServer) NewTransaction() *spannerpb.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txSeq++

	return &spannerpb.Transaction{
		Id:            []byte(fmt.Sprintf("tx-%d", s.txSeq)),
		ReadTimestamp: timestamppb.Now(),
	}
}

// TransactionFor returns a new transaction when the selector asks to begin one.
func (s *SpannerServer) TransactionFor(selector *spannerpb.TransactionSelector) *spannerpb.Transaction {
	if selector.GetBegin() == nil {
		return nil
	}

	return s.NewTransaction()
}

func (s *SpannerServer) CreateSession(
	ctx context.Context, req *spannerpb.CreateSessionRequest,
) (*spannerpb.Session, error) {
	s.record(ctx, "CreateSession", req)
	if s.OnCreateSession != nil {
		return s.OnCreateSession(ctx, req)
	}

	return s.newSession(req.GetSession()), nil
}

func (s *SpannerServer) BatchCreateSessions(
	ctx context.Context, req *spannerpb.BatchCreateSessionsRequest,
) (*spannerpb.BatchCreateSessionsResponse, error) {
	s.record(ctx, "BatchCreateSessions", req)
	if s.OnBatchCreateSessions != nil {
		return s.OnBatchCreateSessions(ctx, req)
	}

	resp := &spannerpb.BatchCreateSessionsResponse{}
	for i := int32(0); i < req.GetSessionCount(); i++ {
		resp.Session = append(resp.Session, s.newSession(req.GetSessionTemplate()))
	}

	return resp, nil
}

func (s *SpannerServer) GetSession(
	ctx context.Context, req *spannerpb.GetSessionRequest,
) (*spannerpb.Session, error) {
	s.record(ctx, "GetSession", req)
	if s.OnGetSession != nil {
		return s.OnGetSession(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Session not found: %s", req.GetName())
	}

	return session, nil
}

func (s *SpannerServer) DeleteSession(
	ctx context.Context, req *spannerpb.DeleteSessionRequest,
) (*emptypb.Empty, error) {
	s.record(ctx, "DeleteSession", req)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, req.GetName())

	return &emptypb.Empty{}, nil
}

func (s *SpannerServer) BeginTransaction(
	ctx context.Context, req *spannerpb.BeginTransactionRequest,
) (*spannerpb.Transaction, error) {
	s.record(ctx, "BeginTransaction", req)
	if s.OnBeginTransaction != nil {
		return s.OnBeginTransaction(ctx, req)
	}

	return s.NewTransaction(), nil
}

func (s *SpannerServer) ExecuteSql(
	ctx context.Context, req *spannerpb.ExecuteSqlRequest,
) (*spannerpb.ResultSet, error) {
	s.record(ctx, "ExecuteSql", req)
	if s.OnExecuteSql != nil {
		return s.OnExecuteSql(ctx, req)
	}

	return &spannerpb.ResultSet{
		Metadata: &spannerpb.ResultSetMetadata{
			RowType:     &spannerpb.StructType{},
			Transaction: s.TransactionFor(req.GetTransaction()),
		},
		Stats: &spannerpb.ResultSetStats{
			RowCount: &spannerpb.ResultSetStats_RowCountExact{RowCountExact: 1},
		},
	}, nil
}

func (s *SpannerServer) ExecuteStreamingSql(
	req *spannerpb.ExecuteSqlRequest, stream spannerpb.Spanner_ExecuteStreamingSqlServer,
) error {
	s.record(stream.Context(), "ExecuteStreamingSql", req)
	if s.OnExecuteStreamingSql != nil {
		return s.OnExecuteStreamingSql(req, stream)
	}

	return stream.Send(&spannerpb.PartialResultSet{
		Metadata: &spannerpb.ResultSetMetadata{
			RowType:     &spannerpb.StructType{},
			Transaction: s.TransactionFor(req.GetTransaction()),
		},
		Stats: &spannerpb.ResultSetStats{
			RowCount: &spannerpb.ResultSetStats_RowCountLowerBound{RowCountLowerBound: 1},
		},
	})
}

func (s *SpannerServer) ExecuteBatchDml(
	ctx context.Context, req *spannerpb.ExecuteBatchDmlRequest,
) (*spannerpb.ExecuteBatchDmlResponse, error) {
	s.record(ctx, "ExecuteBatchDml", req)
	if s.OnExecuteBatchDml != nil {
		return s.OnExecuteBatchDml(ctx, req)
	}

	resp := &spannerpb.ExecuteBatchDmlResponse{}
	for i := range req.GetStatements() {
		rs := &spannerpb.ResultSet{
			Stats: &spannerpb.ResultSetStats{
				RowCount: &spannerpb.ResultSetStats_RowCountExact{RowCountExact: 1},
			},
		}
		if i == 0 {
			rs.Metadata = &spannerpb.ResultSetMetadata{
				Transaction: s.TransactionFor(req.GetTransaction()),
			}
		}
		resp.ResultSets = append(resp.ResultSets, rs)
	}

	return resp, nil
}

func (s *SpannerServer) StreamingRead(req *spannerpb.ReadRequest, stream spannerpb.Spanner_StreamingReadServer) error {
	s.record(stream.Context(), "StreamingRead", req)
	if s.OnStreamingRead != nil {
		return s.OnStreamingRead(req, stream)
	}

	return stream.Send(&spannerpb.PartialResultSet{
		Metadata: &spannerpb.ResultSetMetadata{
			RowType:     &spannerpb.StructType{},
			Transaction: s.TransactionFor(req.GetTransaction()),
		},
	})
}

func (s *SpannerServer) Commit(
	ctx context.Context, req *spannerpb.CommitRequest,
) (*spannerpb.CommitResponse, error) {
	s.record(ctx, "Commit", req)
	if s.OnCommit != nil {
		return s.OnCommit(ctx, req)
	}

	return &spannerpb.CommitResponse{
		CommitTimestamp: timestamppb.Now(),
		CommitStats: &spannerpb.CommitResponse_CommitStats{
			MutationCount: int64(len(req.GetMutations())),
		},
	}, nil
}

func (s *SpannerServer) Rollback(ctx context.Context, req *spannerpb.RollbackRequest) (*emptypb.Empty, error) {
	s.record(ctx, "Rollback", req)
	if s.OnRollback != nil {
		if err := s.OnRollback(ctx, req); err != nil {
			return nil, err
		}
	}

	return &emptypb.Empty{}, nil
}

func (s *SpannerServer) partitions(n int) []*spannerpb.Partition {
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions := make([]*spannerpb.Partition, 0, n)
	for i := 0; i < n; i++ {
		s.partitionNo++
		partitions = append(partitions, &spannerpb.Partition{
			PartitionToken: []byte(fmt.Sprintf("partition-%d", s.partitionNo)),
		})
	}

	return partitions
}

func (s *SpannerServer) PartitionQuery(
	ctx context.Context, req *spannerpb.PartitionQueryRequest,
) (*spannerpb.PartitionResponse, error) {
	s.record(ctx, "PartitionQuery", req)

	return &spannerpb.PartitionResponse{
		Partitions:  s.partitions(2), //nolint:gomnd
		Transaction: s.TransactionFor(req.GetTransaction()),
	}, nil
}

func (s *SpannerServer) PartitionRead(
	ctx context.Context, req *spannerpb.PartitionReadRequest,
) (*spannerpb.PartitionResponse, error) {
	s.record(ctx, "PartitionRead", req)

	return &spannerpb.PartitionResponse{
		Partitions:  s.partitions(2), //nolint:gomnd
		Transaction: s.TransactionFor(req.GetTransaction()),
	}, nil
}

func (s *SpannerServer) BatchWrite(req *spannerpb.BatchWriteRequest, stream spannerpb.Spanner_BatchWriteServer) error {
	s.record(stream.Context(), "BatchWrite", req)
	if s.OnBatchWrite != nil {
		return s.OnBatchWrite(req, stream)
	}

	for i := range req.GetMutationGroups() {
		err := stream.Send(&spannerpb.BatchWriteResponse{
			Indexes:         []int32{int32(i)},
			CommitTimestamp: timestamppb.Now(),
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Register attaches the server to a grpc.Server.
func (s *SpannerServer) Register(server *grpc.Server) {
	spannerpb.RegisterSpannerServer(server, s)
}
