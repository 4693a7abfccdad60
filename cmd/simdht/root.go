package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	simdht "github.com/dep2p/go-simdht"
	"github.com/dep2p/go-simdht/config"
	"github.com/dep2p/go-simdht/pkg/lib/log"
)

var logger = log.Logger("simdht/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 全局参数
// ═══════════════════════════════════════════════════════════════════════════

// rootOptions 所有子命令共用的参数
type rootOptions struct {
	configFile string
	nodes      int
	algorithm  string
	bits       int
	load       string
	secret     string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "simdht",
		Short: "Similarity-aware DHT shell",
		Long: `simdht starts an in-process overlay of similarity-aware DHT nodes,
optionally seeds it from a file of "key value" lines, and runs one command
against the first node.`,
		Version:       simdht.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return ro.applyLogging()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&ro.configFile, "config", "", "config file (JSON)")
	f.IntVar(&ro.nodes, "nodes", 4, "number of in-process nodes")
	f.StringVar(&ro.algorithm, "algorithm", "", "routing algorithm (Kademlia, HammingKademlia, Hamming, HammingChord)")
	f.IntVar(&ro.bits, "bits", 0, "ID bit length, overrides the config file")
	f.StringVar(&ro.load, "load", "", `file of "key value" lines stored before the command runs`)
	f.StringVar(&ro.secret, "secret", "", "secret attached to stored values")
	f.StringVar(&ro.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.BoolVarP(&ro.verbose, "verbose", "v", false, "debug logs including fx events")

	cmd.SetVersionTemplate(simdht.VersionInfo() + "\n")
	cmd.AddCommand(
		newGetSimilarCmd(ro),
		newGetCmd(ro),
		newPutCmd(ro),
		newLSHCmd(ro),
	)
	return cmd
}

// applyLogging 按 --verbose / --log-level 设置日志级别
func (ro *rootOptions) applyLogging() error {
	if ro.verbose {
		log.SetOutput(os.Stderr, log.LevelDebug)
		return nil
	}
	if ro.logLevel == "" {
		return nil
	}
	level, err := log.ParseLevel(ro.logLevel)
	if err != nil {
		return err
	}
	log.SetOutput(os.Stderr, level)
	return nil
}

// loadConfig 读取配置文件并应用命令行覆盖
func (ro *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if ro.configFile != "" {
		loaded, err := config.Load(ro.configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if ro.algorithm != "" {
		cfg.Routing.Algorithm = ro.algorithm
	}
	if ro.bits > 0 {
		cfg.Routing.IDBitLength = ro.bits
		cfg.LSH.IDBitLength = ro.bits
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fxLogger --verbose 时输出 Fx 事件
func (ro *rootOptions) fxLogger() *zap.Logger {
	if !ro.verbose {
		return nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		logger.Warn("创建 zap logger 失败", "error", err)
		return nil
	}
	return l
}

// withOverlay 启动覆盖网络、预置数据、执行 fn，最后关闭所有节点
func (ro *rootOptions) withOverlay(ctx context.Context, fn func(o *overlay) error) error {
	cfg, err := ro.loadConfig()
	if err != nil {
		return err
	}
	o, err := startOverlay(ctx, cfg, ro.nodes, ro.fxLogger())
	if err != nil {
		return err
	}
	defer func() {
		if err := o.Close(); err != nil {
			logger.Warn("关闭覆盖网络失败", "error", err)
		}
	}()

	if ro.load != "" {
		n, err := o.load(ctx, ro.load, ro.hashedSecret())
		if err != nil {
			return err
		}
		logger.Info("已加载数据", "file", ro.load, "keys", n)
	}
	return fn(o)
}
