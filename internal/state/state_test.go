package state_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/otpearn/otpearn-server/internal/state"
)

func TestStoreDefaultsToIdle(t *testing.T) {
	s := state.NewStore()
	assert.Equal(t, state.Idle, s.Get(42))
}

func TestStoreSetAndClear(t *testing.T) {
	s := state.NewStore()

	s.Set(42, state.AwaitingWithdrawalDetails)
	assert.Equal(t, state.AwaitingWithdrawalDetails, s.Get(42))

	// Other users are unaffected.
	assert.Equal(t, state.Idle, s.Get(7))

	s.Clear(42)
	assert.Equal(t, state.Idle, s.Get(42))
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := state.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Set(id, state.AwaitingWithdrawalDetails)
			_ = s.Get(id)
			s.Clear(id)
		}(int64(i))
	}
	wg.Wait()

	for i := int64(0); i < 50; i++ {
		assert.Equal(t, state.Idle, s.Get(i))
	}
}
