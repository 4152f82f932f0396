package codegen

import (
	"strings"
	"sync"

	"github.com/dujiao-next/discount-engine/internal/constants"

	"github.com/jaevor/go-nanoid"
)

// chunkSize nanoid 每次生成的固定长度，长度不足 5 时 nanoid 不会返回
const chunkSize = 32

// Generator 折扣码生成函数：prefix + length 位 [A-Za-z0-9] 随机字符
type Generator func(prefix string, length int) string

var (
	genOnce sync.Once
	genMu   sync.Mutex
	gen     func() string
)

// Generate 生成折扣码，length <= 0 时只返回前缀
func Generate(prefix string, length int) string {
	if length <= 0 {
		return prefix
	}
	var b strings.Builder
	b.Grow(len(prefix) + length)
	b.WriteString(prefix)
	for remaining := length; remaining > 0; {
		n := min(remaining, chunkSize)
		b.WriteString(next()[:n])
		remaining -= n
	}
	return b.String()
}

func next() string {
	genOnce.Do(func() {
		g, err := nanoid.CustomASCII(constants.CodeAlphabet, chunkSize)
		if err != nil {
			// 字母表与长度均为常量，不会出错
			panic(err)
		}
		gen = g
	})
	genMu.Lock()
	defer genMu.Unlock()
	return gen()
}
