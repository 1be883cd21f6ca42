package notification

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Mailer dispatch", func() {
	It("stops when cancelled while holding a worker that no longer listens", func() {
		ctx, cancel := context.WithCancel(context.Background())
		m := &Mailer{
			logger:     slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
			jobQueue:   make(chan Mail, 1),
			workerPool: make(chan chan Mail, 1),
			ctx:        ctx,
			cancel:     cancel,
			dispatched: make(chan struct{}),
		}
		m.workerPool <- make(chan Mail)
		go m.dispatch()

		m.jobQueue <- Mail{Kind: "password_issued"}
		Eventually(func() int { return len(m.workerPool) }).Should(BeZero())

		m.cancel()
		Eventually(m.dispatched).Should(BeClosed())
	})
})
