package train

import "github.com/cyclopcam/yolotrain/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 1000

// MaxBacklog is the number of output lines that are kept for watchers that join late
const MaxBacklog = 5000

// Register to receive the output of training runs.
// Returns the lines of the current (or most recent) run that have already been emitted,
// and a channel that receives every line after that.
func (t *Trainer) AddWatcher() ([]string, chan string) {
	t.watchersLock.Lock()
	defer t.watchersLock.Unlock()
	ch := make(chan string, WatcherChannelSize)
	t.watchers = append(t.watchers, ch)
	return append([]string{}, t.backlog...), ch
}

// Unregister from training output
func (t *Trainer) RemoveWatcher(ch chan string) {
	t.watchersLock.Lock()
	defer t.watchersLock.Unlock()
	n := len(t.watchers)
	t.watchers = gen.DeleteFirst(t.watchers, ch)
	if len(t.watchers) == n {
		t.Log.Warnf("Trainer.RemoveWatcher failed to find channel")
	}
}

// Discard the backlog, before a new run starts
func (t *Trainer) resetBacklog() {
	t.watchersLock.Lock()
	t.backlog = t.backlog[:0]
	t.watchersLock.Unlock()
}

func (t *Trainer) sendToWatchers(line string) {
	t.watchersLock.Lock()
	defer t.watchersLock.Unlock()
	if len(t.backlog) >= MaxBacklog {
		t.backlog = append(t.backlog[:0], t.backlog[len(t.backlog)-MaxBacklog+1:]...)
	}
	t.backlog = append(t.backlog, line)
	for _, ch := range t.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch) {
			// Never stall the training process because of a slow watcher
			t.Log.Warnf("Training output watcher is falling behind. Dropping lines.")
		} else {
			ch <- line
		}
	}
}
