package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(100, 20)
	assert.Nil(t, s.Split(""))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("a short report")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "a short report", chunks[0].Text)
}

func TestSplitOverlappingWindows(t *testing.T) {
	s := NewSplitter(10, 4)
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := s.Split(text)

	require.True(t, len(chunks) > 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Text)), 10)
	}
	// Consecutive windows share their overlap region.
	assert.True(t, strings.HasPrefix(chunks[1].Text, chunks[0].Text[len(chunks[0].Text)-4:]))
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	s := NewSplitter(5, 0)
	chunks := s.Split(strings.Repeat("é", 12))
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 5)
	}
}

func TestSplitSkipsBlankWindows(t *testing.T) {
	s := NewSplitter(4, 0)
	chunks := s.Split("abcd    efgh")
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "efgh", chunks[1].Text)
	// Indexes stay contiguous even when a window is dropped.
	assert.Equal(t, 1, chunks[1].Index)
}

func TestNewSplitterClampsBadConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	assert.Equal(t, 900, s.ChunkSize)
	assert.Equal(t, 0, s.Overlap)

	s = NewSplitter(100, 200)
	assert.Equal(t, 25, s.Overlap)
}
