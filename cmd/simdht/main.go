// Package main 提供 simdht 命令行入口
//
// 每次运行都在进程内启动一个由 --nodes 个节点组成的覆盖网络，
// 用 --load 文件预置数据，然后在第一个节点上执行子命令：
//
//	simdht --nodes 8 --load data.txt get-similar --hops 2 0f00 0.9
//	simdht --bits 32 lsh "hello world" "hello word"
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
