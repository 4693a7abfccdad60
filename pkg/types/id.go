package types

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"math/rand"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              ID - 定长比特串
// ============================================================================

// ID 定长比特串，大端字节序
//
// 同时用作节点标识和内容键。ID 可比较，可直接作为 map 键；
// 相同长度的两个 ID，字节序比较与数值比较一致。
//
// 外部表示格式：
//   - String(): 十六进制
//   - ShortString(): Base58 前 8 个字符（日志使用）
type ID struct {
	b string
}

// EmptyID 空 ID
var EmptyID ID

var (
	// ErrInvalidID 无效的 ID
	ErrInvalidID = errors.New("types: invalid ID")

	// ErrSizeMismatch ID 长度不一致
	ErrSizeMismatch = errors.New("types: ID size mismatch")
)

// NewID 从字节切片创建 ID（复制输入）
func NewID(b []byte) ID {
	return ID{b: string(b)}
}

// IDFromBigInt 从非负整数创建长度为 size 字节的 ID
//
// 超出 size 字节的高位被截断，即取 n mod 2^(8*size)。
// 负数按二进制补码处理。
func IDFromBigInt(n *big.Int, size int) ID {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	v := new(big.Int).Mod(n, mod)
	buf := make([]byte, size)
	v.FillBytes(buf)
	return ID{b: string(buf)}
}

// IDFromUint64 从整数创建 ID，测试与工具中常用
func IDFromUint64(n uint64, size int) ID {
	return IDFromBigInt(new(big.Int).SetUint64(n), size)
}

// SHA1ID 返回 SHA-1 派生的 ID
//
// size <= 20 时截取摘要前 size 字节；更长时重复对摘要求哈希补齐。
func SHA1ID(data []byte, size int) ID {
	sum := sha1.Sum(data)
	out := make([]byte, 0, size)
	block := sum[:]
	for len(out) < size {
		out = append(out, block...)
		next := sha1.Sum(block)
		block = next[:]
	}
	return ID{b: string(out[:size])}
}

// ParseID 解析用户输入的键
//
// 恰好 size 字节的十六进制串按原值解析，其余字符串取其 SHA-1 派生 ID。
func ParseID(s string, size int) (ID, error) {
	if size <= 0 {
		return EmptyID, ErrInvalidID
	}
	if len(s) == size*2 {
		if b, err := hex.DecodeString(s); err == nil {
			return NewID(b), nil
		}
	}
	if s == "" {
		return EmptyID, ErrInvalidID
	}
	return SHA1ID([]byte(s), size), nil
}

// MustParseHex 解析十六进制 ID，失败时 panic，仅用于测试和常量
func MustParseHex(s string) ID {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		panic(fmt.Sprintf("types: bad hex ID %q", s))
	}
	return NewID(b)
}

// RandomID 生成随机 ID
func RandomID(size int, rnd *rand.Rand) ID {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(rnd.Intn(256))
	}
	return ID{b: string(buf)}
}

// Size 返回字节长度
func (id ID) Size() int {
	return len(id.b)
}

// BitLen 返回比特长度
func (id ID) BitLen() int {
	return len(id.b) * 8
}

// IsEmpty 检查是否为空
func (id ID) IsEmpty() bool {
	return id.b == ""
}

// Bytes 返回字节副本
func (id ID) Bytes() []byte {
	return []byte(id.b)
}

// BigInt 返回非负整数表示
func (id ID) BigInt() *big.Int {
	return new(big.Int).SetBytes([]byte(id.b))
}

// Xor 按位异或，长度不一致时 panic
func (id ID) Xor(other ID) ID {
	if len(id.b) != len(other.b) {
		panic(ErrSizeMismatch)
	}
	out := make([]byte, len(id.b))
	for i := range out {
		out[i] = id.b[i] ^ other.b[i]
	}
	return ID{b: string(out)}
}

// OnesCount 返回置位比特数
func (id ID) OnesCount() int {
	n := 0
	for i := 0; i < len(id.b); i++ {
		n += bits.OnesCount8(id.b[i])
	}
	return n
}

// Bit 返回第 i 位（0 为最低位）
func (id ID) Bit(i int) uint {
	if i < 0 || i >= id.BitLen() {
		return 0
	}
	return uint(id.b[len(id.b)-1-i/8]>>(uint(i)%8)) & 1
}

// Compare 自然序比较：先比较长度，再按数值比较
func (id ID) Compare(other ID) int {
	if len(id.b) != len(other.b) {
		if len(id.b) < len(other.b) {
			return -1
		}
		return 1
	}
	return bytes.Compare([]byte(id.b), []byte(other.b))
}

// Equal 比较是否相等
func (id ID) Equal(other ID) bool {
	return id.b == other.b
}

// String 返回十六进制表示
func (id ID) String() string {
	return hex.EncodeToString([]byte(id.b))
}

// ShortString 返回 Base58 前 8 个字符
func (id ID) ShortString() string {
	s := base58.Encode([]byte(id.b))
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// MarshalJSON 以十六进制字符串编码
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON 解码十六进制字符串
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	*id = NewID(b)
	return nil
}

// MarshalText 实现 encoding.TextMarshaler，使 ID 可作为 JSON map 键
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	*id = NewID(b)
	return nil
}
