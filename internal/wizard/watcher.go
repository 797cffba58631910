package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is the status poll cadence.
const pollInterval = 2 * time.Second

// Watcher polls the import status on a fixed cadence and feeds each
// observation to the machine. One watcher serves one import; Stop is
// idempotent and safe to call from any goroutine.
type Watcher struct {
	fetcher StatusFetcher
	machine *Machine
	log     zerolog.Logger

	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func NewWatcher(fetcher StatusFetcher, machine *Machine, log zerolog.Logger) *Watcher {
	return &Watcher{
		fetcher:  fetcher,
		machine:  machine,
		log:      log,
		interval: pollInterval,
		done:     make(chan struct{}),
	}
}

// Start begins polling until the machine reaches a terminal state, the
// context expires or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status, err := w.fetcher.FetchStatus(ctx)
				if err != nil {
					// Transient poll failures are tolerated; the stage
					// timeout catches a server that never answers.
					w.log.Debug().Err(err).Msg("Status poll failed")
					continue
				}
				w.machine.Observe(status)

				if state, _ := w.machine.State(); terminal(state) {
					return
				}
			}
		}
	}()
}

// Stop cancels polling and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		<-w.done
	})
}
