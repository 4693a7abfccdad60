package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	simdht "github.com/dep2p/go-simdht"
	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/internal/core/transport/memnet"
	"github.com/dep2p/go-simdht/internal/dht"
	"github.com/dep2p/go-simdht/pkg/types"
)

// overlay 进程内的节点集合，nodes[0] 是引导节点和命令入口
type overlay struct {
	network *memnet.Network
	nodes   []*simdht.Node
}

// startOverlay 启动 count 个节点，其余节点通过第一个节点加入
//
// 持久化目录时每个节点使用 DataDir 下独立的子目录。
// 内存网络按顺序分配地址，节点 ID 由地址派生，因此多次运行得到相同的 ID。
func startOverlay(ctx context.Context, cfg *config.Config, count int, fxLog *zap.Logger) (*overlay, error) {
	if count <= 0 {
		return nil, fmt.Errorf("--nodes must be positive, got %d", count)
	}
	o := &overlay{network: memnet.NewNetwork()}
	for i := 0; i < count; i++ {
		nodeCfg := clampReplication(config.CloneConfig(cfg), count)
		if cfg.Directory.Type == config.DirectoryPersistent {
			nodeCfg.Storage.DataDir = filepath.Join(cfg.Storage.DataDir, fmt.Sprintf("node-%d", i))
		}
		opts := []simdht.Option{
			simdht.WithConfig(nodeCfg),
			simdht.WithNetwork(o.network),
		}
		if fxLog != nil {
			opts = append(opts, simdht.WithFxLogger(fxLog))
		}
		if i > 0 {
			opts = append(opts, simdht.WithBootstrap(o.nodes[0].Address()))
		}
		n, err := simdht.Start(ctx, opts...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("start node %d: %w", i, err), o.Close())
		}
		o.nodes = append(o.nodes, n)
	}
	return o, nil
}

// clampReplication 副本数不超过节点数，否则每次 put 都凑不够确认
func clampReplication(cfg *config.Config, count int) *config.Config {
	if cfg.DHT.ReplicationFactor > count {
		cfg.DHT.ReplicationFactor = count
	}
	cfg.DHT.MinReplicaAcks = min(cfg.DHT.MinReplicaAcks, cfg.DHT.ReplicationFactor)
	return cfg
}

// entry 返回执行命令的节点
func (o *overlay) entry() *simdht.Node {
	return o.nodes[0]
}

// idSize 返回 ID 字节数
func (o *overlay) idSize() int {
	return o.entry().Config().IDSize()
}

// Close 关闭所有节点
func (o *overlay) Close() error {
	var err error
	for i := len(o.nodes) - 1; i >= 0; i-- {
		err = multierr.Append(err, o.nodes[i].Close())
	}
	o.nodes = nil
	return err
}

// load 读取 "key value" 行并批量写入，返回写入的键数
//
// 空行和 # 开头的行被忽略；同一键的多行合并为一个请求。
func (o *overlay) load(ctx context.Context, path string, secret types.Secret) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	size := o.idSize()
	index := make(map[types.ID]int)
	var reqs []dht.PutRequest[string]
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		keyStr, value, ok := strings.Cut(text, " ")
		if !ok {
			return 0, fmt.Errorf("%s:%d: expected \"key value\"", path, line)
		}
		key, err := types.ParseID(keyStr, size)
		if err != nil {
			return 0, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		i, seen := index[key]
		if !seen {
			i = len(reqs)
			index[key] = i
			reqs = append(reqs, dht.PutRequest[string]{Key: key})
		}
		reqs[i].Values = append(reqs[i].Values, strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}

	var errs error
	for i, r := range o.entry().PutWith(ctx, reqs, dht.PutOptions{Secret: secret}) {
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store %s: %w", reqs[i].Key, r.Err))
		}
	}
	return len(reqs), errs
}

// hashedSecret 返回 --secret 的哈希，未指定时为 nil
func (ro *rootOptions) hashedSecret() types.Secret {
	if ro.secret == "" {
		return nil
	}
	return types.HashSecret([]byte(ro.secret))
}
