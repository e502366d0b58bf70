package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/zhangshican/quotio-bridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string) models.RequestRecord {
	return models.RequestRecord{ID: id, RequestedModel: "my-best", StatusCode: 200}
}

func TestAddAndRecordsNewestFirst(t *testing.T) {
	tr := New(10)
	tr.Add(record("r-1"))
	tr.Add(record("r-2"))
	tr.Add(record("r-3"))

	records := tr.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "r-3", records[0].ID)
	assert.Equal(t, "r-1", records[2].ID)
	assert.Equal(t, 3, tr.Len())
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	tr := New(3)
	for i := 1; i <= 5; i++ {
		tr.Add(record(fmt.Sprintf("r-%d", i)))
	}

	records := tr.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "r-5", records[0].ID)
	assert.Equal(t, "r-4", records[1].ID)
	assert.Equal(t, "r-3", records[2].ID)
	assert.Equal(t, 3, tr.Len())
}

func TestDefaultCapacity(t *testing.T) {
	tr := New(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		tr.Add(record(fmt.Sprintf("r-%d", i)))
	}
	assert.Equal(t, DefaultCapacity, tr.Len())
}

func TestOnRecordHook(t *testing.T) {
	tr := New(5)
	var seen []string
	tr.OnRecord(func(r models.RequestRecord) { seen = append(seen, r.ID) })

	tr.Add(record("r-1"))
	tr.Add(record("r-2"))
	assert.Equal(t, []string{"r-1", "r-2"}, seen)
}

func TestConcurrentAppends(t *testing.T) {
	tr := New(32)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Add(record(fmt.Sprintf("w%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, tr.Len())
	for _, r := range tr.Records() {
		assert.NotEmpty(t, r.ID, "no interleaved or torn records")
	}
}
