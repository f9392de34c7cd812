package dice

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollFacesInRange(t *testing.T) {
	d := NewSeeded(42)
	var first, second [Faces + 1]int
	for i := 0; i < 10000; i++ {
		r := d.Roll()
		require.Truef(t, r.Valid(), "roll %s out of range", r)
		first[r.First]++
		second[r.Second]++
	}
	for face := 1; face <= Faces; face++ {
		assert.Positivef(t, first[face], "first die never showed %d", face)
		assert.Positivef(t, second[face], "second die never showed %d", face)
	}
}

func TestSeededDiceAreDeterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Roll(), b.Roll())
	}
}

type constSource int

func (c constSource) Intn(n int) int { return int(c) % n }

func TestRollUsesSource(t *testing.T) {
	d := New(constSource(5))
	r := d.Roll()
	assert.Equal(t, Roll{First: 6, Second: 6}, r)
	assert.Equal(t, 12, r.Sum())
	assert.True(t, r.HasSix())
}

func TestRollConcurrentUse(t *testing.T) {
	d, err := NewRandom()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.True(t, d.Roll().Valid())
			}
		}()
	}
	wg.Wait()
}

func TestScriptReplaysThenRepeatsLast(t *testing.T) {
	s := Fixed(Roll{1, 2}, Roll{3, 4})
	assert.Equal(t, Roll{1, 2}, s.Roll())
	assert.Equal(t, Roll{3, 4}, s.Roll())
	assert.Equal(t, Roll{3, 4}, s.Roll())

	assert.Panics(t, func() { Fixed() })
	assert.Panics(t, func() { Fixed(Roll{0, 7}) })
}

func TestRollHelpers(t *testing.T) {
	assert.False(t, Roll{2, 3}.HasSix())
	assert.True(t, Roll{2, 6}.HasSix())
	assert.Equal(t, "2+3", Roll{2, 3}.String())
}
