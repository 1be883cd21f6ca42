package expense

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("keyedMutex", func() {
	It("serializes holders of the same key", func() {
		locks := newKeyedMutex()
		var inside, peak atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.Lock(7)
				n := inside.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(peak.Load()).To(Equal(int32(1)))
		Expect(locks.size()).To(BeZero())
	})

	It("does not block other keys", func() {
		locks := newKeyedMutex()
		unlock := locks.Lock(1)
		defer unlock()

		done := make(chan struct{})
		go func() {
			locks.Lock(2)()
			close(done)
		}()
		Eventually(done).Should(BeClosed())
		Expect(locks.size()).To(Equal(1))
	})
})
