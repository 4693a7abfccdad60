package dht

import (
	"context"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-simdht/internal/core/transport"
	"github.com/dep2p/go-simdht/internal/core/transport/mocks"
	"github.com/dep2p/go-simdht/internal/directory"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/types"
)

// TestDHT_PutBatchGroupsByAddress 测试同一副本负责的多个键合并为一次 PUT
func TestDHT_PutBatchGroupsByAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	peer := types.IDAddressPair{ID: id(0x0000), Address: "mock://peer"}

	var mu sync.Mutex
	var puts [][]putEntry[string]

	tr.EXPECT().Address().Return("mock://self").AnyTimes()
	tr.EXPECT().Handle(gomock.Any(), gomock.Any()).AnyTimes()
	tr.EXPECT().Close().Return(nil).AnyTimes()
	tr.EXPECT().SendAndReceive(gomock.Any(), peer.Address, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, msg *transport.Message) (*transport.Message, error) {
			switch msg.Type {
			case transport.MessageTypeFindNode:
				return transport.NewReply(msg, peer, routing.FindNodeResponse{})
			case transport.MessageTypePut:
				var req putMessage[string]
				if err := msg.DecodePayload(&req); err != nil {
					return nil, err
				}
				mu.Lock()
				puts = append(puts, req.Entries)
				mu.Unlock()
				return transport.NewReply(msg, peer, storeReply[string]{Values: make([][]wireValue[string], len(req.Entries))})
			}
			return nil, transport.ErrUnreachable
		}).AnyTimes()

	clk := clock.NewMock()
	svc, err := routing.NewService(id(0xffff), tr, testRoutingConfig(0), routing.WithClock(clk))
	require.NoError(t, err)
	dir := directory.NewMemory[string](directory.DefaultConfig(), nil, clk)
	d, err := New[string](svc, dir, testConfig(WithReplicationFactor(1), WithSpareCandidates(0)))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = d.Stop()
		_ = dir.Close()
	})
	svc.Algorithm().Touch(peer)

	results := d.PutBatch(context.Background(), []PutRequest[string]{
		{Key: id(0x0001), Values: []string{"a"}},
		{Key: id(0x0002), Values: []string{"b"}},
		{Key: id(0x0003), Values: []string{"c"}},
	})
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, puts, 1)
	assert.Len(t, puts[0], 3)
	keys, err := d.GlobalKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	t.Log("✅ 按地址合并副本请求")
}
