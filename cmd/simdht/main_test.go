package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run 执行一次命令并返回标准输出
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeLoadFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

// TestGetSimilarCommand 测试相似性查询的输出格式
func TestGetSimilarCommand(t *testing.T) {
	data := writeLoadFile(t, "# seed", "0f00 exact", "0f01 near", "", "f0ff far")

	out, err := run(t, "--nodes", "3", "--bits", "16", "--algorithm", "Kademlia", "--secret", "s",
		"--load", data, "get-similar", "--hops", "1", "0f00", "0.9")
	require.NoError(t, err)

	assert.Contains(t, out, "search key: 0f00\n")
	assert.Contains(t, out, "threshold:  0.9\n")
	assert.Contains(t, out, "results: \n")
	assert.Contains(t, out, "content key: 0f00\nvalue:       exact ")
	assert.Contains(t, out, "content key: 0f01\nvalue:       near ")
	assert.NotContains(t, out, "far")
	assert.Less(t, strings.Index(out, "content key: 0f00"), strings.Index(out, "content key: 0f01"))
	t.Log("✅ get-similar 输出格式正确")
}

// TestGetSimilarCommand_Usage 测试参数个数为奇数时输出用法
func TestGetSimilarCommand_Usage(t *testing.T) {
	out, err := run(t, "get-similar", "0f00", "0.9", "0f01")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "usage: get-similar"))
}

// TestGetSimilarCommand_Status 测试 --status 输出路由信息
func TestGetSimilarCommand_Status(t *testing.T) {
	out, err := run(t, "--nodes", "2", "--bits", "16", "get-similar", "--status", "1234", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "no values returned")
	assert.Contains(t, out, "Routing table:")
	assert.Contains(t, out, "Last routing results:")
}

// TestGetCommand 测试精确查询
func TestGetCommand(t *testing.T) {
	data := writeLoadFile(t, "0042 a", "0042 b")

	out, err := run(t, "--nodes", "2", "--bits", "16", "--load", data, "get", "0042", "0043")
	require.NoError(t, err)
	assert.Contains(t, out, "key: 0042\nvalue:       a ")
	assert.Contains(t, out, "value:       b ")
	assert.Contains(t, out, "key: 0043\nno values returned\n")
}

// TestPutCommand 测试写入与已存在值的输出
func TestPutCommand(t *testing.T) {
	out, err := run(t, "--nodes", "2", "--bits", "16", "put", "0001", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "key: 0001\nno previous values\n")

	data := writeLoadFile(t, "0001 a")
	out, err = run(t, "--nodes", "2", "--bits", "16", "--secret", "s", "--load", data, "put", "0001", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "value:       a ")
}

// TestLSHCommand 测试内容键可复现且长度与 --bits 一致
func TestLSHCommand(t *testing.T) {
	out, err := run(t, "--bits", "16", "lsh", "hello", "hello")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, strings.Fields(lines[0])[0], 4)
	assert.Contains(t, lines[1], "similarity=1.000")

	out, err = run(t, "--bits", "16", "lsh", "--vector", "1,2,3", "1,2,3.1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = run(t, "--bits", "16", "lsh", "--vector", "1,x")
	assert.Error(t, err)
}

// TestRootCommand_InvalidConfig 测试非法参数在启动前失败
func TestRootCommand_InvalidConfig(t *testing.T) {
	_, err := run(t, "--algorithm", "Pastry", "get", "0001")
	assert.Error(t, err)

	_, err = run(t, "--nodes", "0", "--bits", "16", "get", "0001")
	assert.Error(t, err)
}
