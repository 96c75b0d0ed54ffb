package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpKeysForwardsUntilEOF(t *testing.T) {
	keys := make(chan byte, 4)
	pumpKeys(strings.NewReader("pq"), keys, make(chan struct{}))
	close(keys)

	var got []byte
	for key := range keys {
		got = append(got, key)
	}
	assert.Equal(t, []byte("pq"), got)
}

func TestPumpKeysReturnsWhenDoneWithoutReader(t *testing.T) {
	keys := make(chan byte)
	done := make(chan struct{})
	finished := make(chan struct{})
	close(done)

	go func() {
		defer close(finished)
		pumpKeys(strings.NewReader("pq"), keys, done)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "key pump kept waiting for a reader after done")
	}
}
