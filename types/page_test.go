package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPage(t *testing.T) {
	page := NewPage([]int{1, 2}, 0, 2, 5)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.First)
	assert.False(t, page.Last)

	last := NewPage([]int{5}, 2, 2, 5)
	assert.False(t, last.First)
	assert.True(t, last.Last)
}

func TestNewPageEmpty(t *testing.T) {
	page := NewPage[string](nil, 0, 10, 0)
	assert.NotNil(t, page.Content)
	assert.Equal(t, 0, page.TotalPages)
	assert.True(t, page.First)
	assert.True(t, page.Last)
}
