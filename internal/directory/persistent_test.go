package directory

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-simdht/internal/core/storage/engine"
	"github.com/dep2p/go-simdht/internal/core/storage/kv"
	"github.com/dep2p/go-simdht/pkg/types"
)

var errInjected = errors.New("injected delete failure")

// flakyEngine 允许的删除次数用完后 Delete 失败
type flakyEngine struct {
	engine.InternalEngine
	deletesLeft atomic.Int64
	failing     atomic.Bool
}

func (e *flakyEngine) Delete(key []byte) error {
	if e.failing.Load() && e.deletesLeft.Add(-1) < 0 {
		return errInjected
	}
	return e.InternalEngine.Delete(key)
}

func (e *flakyEngine) failAfter(n int64) {
	e.deletesLeft.Store(n)
	e.failing.Store(true)
}

func valuesOf(set types.ValueSet[string]) []string {
	out := make([]string, 0, len(set))
	for _, vi := range set {
		out = append(out, vi.Value)
	}
	return out
}

// TestPersistent_RemoveMatchingPartialFailure 测试删除中途失败时内存索引与存储一致
func TestPersistent_RemoveMatchingPartialFailure(t *testing.T) {
	eng := &flakyEngine{InternalEngine: testEngine(t)}
	store := kv.New(eng, []byte("d/v/test/"))
	clk := clock.NewMock()
	cfg := DefaultConfig()
	cfg.Type = TypePersistent

	d, err := NewPersistent[string](cfg, store, nil, clk)
	require.NoError(t, err)
	key := types.MustParseHex("0a")
	for _, v := range []string{"a", "b", "c"} {
		_, err := d.Put(key, info(v, time.Hour))
		require.NoError(t, err)
	}

	eng.failAfter(1)
	removed, err := d.RemoveAll(key)
	require.ErrorIs(t, err, errInjected)
	require.Len(t, removed, 1)

	got, err := d.Get(key)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NotContains(t, valuesOf(got), removed[0].Value)

	// 重新加载后看到的数据与失败前的内存索引相同
	eng.failing.Store(false)
	reopened, err := NewPersistent[string](cfg, store, nil, clk)
	require.NoError(t, err)
	reloaded, err := reopened.Get(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, valuesOf(got), valuesOf(reloaded))

	t.Log("✅ 部分删除失败测试通过")
}

// TestPersistent_CorruptedRecord 测试损坏记录在加载时被跳过，单条读取报告 ErrCorrupted
func TestPersistent_CorruptedRecord(t *testing.T) {
	eng := testEngine(t)
	store := kv.New(eng, []byte("d/v/test/"))
	cfg := DefaultConfig()
	cfg.Type = TypePersistent

	d, err := NewPersistent[string](cfg, store, nil, nil)
	require.NoError(t, err)
	_, err = d.Put(types.MustParseHex("01"), info("ok", time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("02/broken"), []byte("{not json")))

	reopened, err := NewPersistent[string](cfg, store, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())

	var rec persistedValue[string]
	err = store.GetJSON([]byte("02/broken"), &rec)
	assert.True(t, engine.IsCorrupted(err))

	single := NewKVSingle[string](kv.New(eng, []byte("d/s/test/")))
	require.NoError(t, kv.New(eng, []byte("d/s/test/")).Put([]byte(types.MustParseHex("03").String()), []byte("[")))
	_, _, err = single.Get(types.MustParseHex("03"))
	assert.ErrorIs(t, err, engine.ErrCorrupted)
}
