package syncutil

import (
	"sync"
	"testing"
	"time"
)

type bus struct {
	Mutex
	inFlight int
	overlaps int
}

func (b *bus) transaction() {
	b.Lock()
	defer b.Unlock()
	b.inFlight++
	if b.inFlight > 1 {
		b.overlaps++
	}
	time.Sleep(100 * time.Microsecond)
	b.inFlight--
}

func TestMutex_EmbeddedLocker(t *testing.T) {
	t.Parallel()

	b := &bus{}
	var _ sync.Locker = b

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				b.transaction()
			}
		}()
	}
	wg.Wait()

	if b.overlaps != 0 {
		t.Errorf("%d overlapping transactions", b.overlaps)
	}
}
