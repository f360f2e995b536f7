package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	var l Logger = &r
	l.Info("tick %d", 1)
	l.Error("investment %s: %v", "i1", "boom")
	l.Error("again")

	assert.Equal(t, 1, r.Count("info"))
	assert.Equal(t, 2, r.Count("error"))
	assert.Equal(t, "investment i1: boom", r.Entries()[1].Message)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Warn("x %s", "y") })
}
