package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitmix64(t *testing.T) {
	assert.Equal(t, uint64(0xe220a8397b1dcdaf), splitmix64(0))
	assert.NotEqual(t, splitmix64(1), splitmix64(2))
}

func TestRunSource_IndependentOfOrder(t *testing.T) {
	a := runSource(42, 3)
	_ = runSource(42, 0).Uint64()
	b := runSource(42, 3)
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
	assert.NotEqual(t, runSource(42, 0).Uint64(), runSource(42, 1).Uint64())
}

func TestSampleTimes(t *testing.T) {
	assert.Equal(t, []float64{0}, sampleTimes(10, 1))
	assert.Equal(t, []float64{0, 2.5, 5, 7.5, 10}, sampleTimes(10, 5))
	times := sampleTimes(3650, 3650)
	assert.Equal(t, 3650.0, times[3649])
}

func TestSampler_LastValueHold(t *testing.T) {
	s := newSampler([]float64{0, 1, 2, 3}, []int{0})
	state := []float64{5}
	s.advance(0.5, state) // event at 0.5
	state[0] = 4
	s.advance(2.5, state) // event at 2.5
	state[0] = 3
	s.finish(state)
	assert.Equal(t, []float64{5, 4, 4, 3}, s.values[0])
}
