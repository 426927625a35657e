package kt

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/kt/internal/testutils"
)

func TestPipelining_ConcurrentCallersGetTheirOwnResponses(t *testing.T) {
	srv := testutils.NewServer()
	srv.ChunkSize = 7
	client := newTestClient(t, srv, Config{})

	const workers = 16
	const iterations = 50

	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range iterations {
				key := []byte(fmt.Sprintf("worker-%d", w))
				marker := []byte(fmt.Sprintf("marker-%d-%d", w, i))

				if err := client.Set(ctx, key, marker, NoExpiration); err != nil {
					errs <- err
					return
				}

				// alternate protocols so binary and text frames interleave on the wire
				var (
					value []byte
					found bool
					err   error
				)
				if i%2 == 0 {
					value, found, err = client.Get(ctx, key)
				} else {
					value, found, err = client.Seize(ctx, key)
				}
				if err != nil {
					errs <- err
					return
				}
				if !found || string(value) != string(marker) {
					errs <- fmt.Errorf("worker %d got %q, want %q", w, value, marker)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats := client.Stats()
	assert.Equal(t, uint64(workers*iterations), stats.Sets)
	assert.Equal(t, uint64(workers*iterations), stats.GetHits)
	assert.Equal(t, uint64(0), stats.InFlight)
}

func TestPipelining_SubmitManyThenWait(t *testing.T) {
	srv := testutils.NewServer()
	client := newTestClient(t, srv, Config{})

	ctx := context.Background()

	ops := make([]*Operation, 100)
	for i := range ops {
		op, err := client.Submit(ctx, binarySet(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
		ops[i] = op
	}

	for i, op := range ops {
		resp, err := op.Wait(ctx)
		require.NoError(t, err, "op %d", i)
		assert.Equal(t, uint32(1), resp.Binary.Hits)
	}

	result, err := client.GetBulk(ctx, [][]byte{[]byte("k0"), []byte("k99")}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k0": []byte("v0"), "k99": []byte("v99")}, result.Map())
}
