package queueworker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChildProcess(t *testing.T) {
	t.Setenv(childEnv, "")
	assert.False(t, isChildProcess())

	t.Setenv(childEnv, "1")
	assert.True(t, isChildProcess())
}
