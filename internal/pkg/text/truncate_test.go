package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0), "max<=0 表示不限长")
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}

func TestJoinBounded(t *testing.T) {
	got := JoinBounded([]string{" a ", "", "b", "  "}, " | ", 100)
	assert.Equal(t, "a | b", got)

	got = JoinBounded([]string{"aaaa", "bbbb"}, ",", 6)
	assert.Equal(t, "aaaa,b...", got)

	assert.Equal(t, "", JoinBounded(nil, ",", 10))
}
