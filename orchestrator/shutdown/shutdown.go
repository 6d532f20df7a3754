package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/PeladoCollado/rpcload/orchestrator/logger"
)

// Signal is the process wide cooperative stop flag. It starts lowered and is raised at
// most once; later calls to Raise have no effect.
type Signal struct {
	raised atomic.Bool
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSignal() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{ctx: ctx, cancel: cancel}
}

// Raise sets the flag. It reports whether this call was the one that raised it.
func (s *Signal) Raise() bool {
	raised := false
	s.once.Do(func() {
		s.raised.Store(true)
		s.cancel()
		raised = true
	})
	return raised
}

func (s *Signal) Raised() bool {
	return s.raised.Load()
}

// Done is closed once the signal has been raised.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is canceled when the signal is raised. Blocking waits select on it.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Listen raises sig on the first SIGINT or SIGTERM. It keeps the registration until ctx is
// done so that later signals are swallowed instead of killing the process mid drain.
func Listen(ctx context.Context, sig *Signal) {
	notify := make(chan os.Signal, 1)
	signal.Notify(notify, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(notify)

	for {
		select {
		case received := <-notify:
			if sig.Raise() {
				logger.Logger.Warnw("Received kill signal, shutting down", "signal", received.String())
			} else {
				logger.Logger.Infow("Already shutting down, ignoring signal", "signal", received.String())
			}
		case <-ctx.Done():
			return
		}
	}
}
