package meta

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

const requestIDVersion = 1

var (
	processRand = sync.OnceValue(func() uint64 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			panic(err)
		}

		return binary.BigEndian.Uint64(b[:])
	})
	clientIDs atomic.Uint32
)

// NextClientID returns a process-unique client id starting from 1.
func NextClientID() uint32 {
	return clientIDs.Add(1)
}

// RequestID identifies one attempt of one RPC.
type RequestID struct {
	ProcessRand uint64
	ClientID    uint32
	ChannelID   uint32
	NthRequest  uint64
	Attempt     uint32
}

func (id RequestID) String() string {
	var b strings.Builder
	b.Grow(64) //nolint:gomnd
	b.WriteString(strconv.Itoa(requestIDVersion))
	for _, v := range []uint64{
		id.ProcessRand,
		uint64(id.ClientID),
		uint64(id.ChannelID),
		id.NthRequest,
		uint64(id.Attempt),
	} {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(v, 10))
	}

	return b.String()
}

// NextAttempt returns the id of the retry of the same call.
func (id RequestID) NextAttempt() RequestID {
	id.Attempt++

	return id
}

func ParseRequestID(s string) (id RequestID, _ error) {
	parts := strings.Split(s, ".")
	if len(parts) != 6 { //nolint:gomnd
		return id, xerrors.WithStackTrace(fmt.Errorf("malformed request id %q", s))
	}
	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return id, xerrors.WithStackTrace(fmt.Errorf("malformed request id %q: %w", s, err))
		}
		nums[i] = n
	}
	if nums[0] != requestIDVersion {
		return id, xerrors.WithStackTrace(fmt.Errorf("unsupported request id version %d", nums[0]))
	}

	return RequestID{
		ProcessRand: nums[1],
		ClientID:    uint32(nums[2]),
		ChannelID:   uint32(nums[3]),
		NthRequest:  nums[4],
		Attempt:     uint32(nums[5]),
	}, nil
}

// RequestIDGenerator hands out request ids for one client channel.
type RequestIDGenerator struct {
	processRand uint64
	clientID    uint32
	channelID   uint32
	nth         atomic.Uint64
}

func NewRequestIDGenerator(clientID, channelID uint32) *RequestIDGenerator {
	return &RequestIDGenerator{
		processRand: processRand(),
		clientID:    clientID,
		channelID:   channelID,
	}
}

// Next returns the first attempt of a new call site.
func (g *RequestIDGenerator) Next() RequestID {
	return RequestID{
		ProcessRand: g.processRand,
		ClientID:    g.clientID,
		ChannelID:   g.channelID,
		NthRequest:  g.nth.Add(1),
		Attempt:     1,
	}
}

func (g *RequestIDGenerator) ClientID() uint32 {
	return g.clientID
}
