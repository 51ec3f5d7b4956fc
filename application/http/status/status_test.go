package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromCode(t *testing.T) {
	s, ok := FromCode(206)
	assert.True(t, ok)
	assert.Equal(t, PartialContent, s)

	s, ok = FromCode(299)
	assert.False(t, ok)
	assert.Equal(t, Status{Code: 299}, s)

	assert.Equal(t, "Not Found", Text(404))
	assert.Equal(t, "", Text(999))
}
