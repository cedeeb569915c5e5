package util

import (
	"fmt"
	"hash/fnv"
)

// MaxIdentifierLen bounds store key material taken from client-controlled
// headers. Anything longer is replaced by its hash.
const MaxIdentifierLen = 64

// BucketKey returns the identifier itself when it is short enough, or its
// FNV-1a 64 hex digest otherwise. Spoofed X-Forwarded-For values can be
// arbitrarily long; hashing keeps store keys bounded without merging buckets.
func BucketKey(id string) string {
	if len(id) <= MaxIdentifierLen {
		return id
	}
	return FNV64(id)
}

// FNV64 使用 FNV-1a 64 位哈希算法，返回 16 进制字符串
func FNV64(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}
