package host

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
)

// #region watch

// Reloaded pairs the freshly-loaded graph with the store the loader
// populated while building it.
type Reloaded struct {
	Graph *graph.SituationGraph
	Store *evolution.Store
}

// WatchGraphFile starts watching path and returns a channel that
// receives a Reloaded value each time the file is rewritten and
// successfully reparsed. The channel is closed when stop is closed.
func WatchGraphFile(path string, logger *zap.SugaredLogger, stop <-chan struct{}) (<-chan Reloaded, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan Reloaded)
	go watchLoop(path, watcher, logger, stop, out)
	return out, nil
}

func watchLoop(path string, watcher *fsnotify.Watcher, logger *zap.SugaredLogger, stop <-chan struct{}, out chan<- Reloaded) {
	defer watcher.Close()
	defer close(out)

	debounce := time.NewTimer(0)
	<-debounce.C

	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(100 * time.Millisecond)
		case <-debounce.C:
			reloaded, err := reloadGraph(path)
			if err != nil {
				logger.Warnw("graph reload failed; keeping previous graph", "path", path, "error", err)
				continue
			}
			select {
			case out <- reloaded:
			case <-stop:
				return
			}
		}
	}
}

func reloadGraph(path string) (Reloaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Reloaded{}, err
	}
	store := evolution.NewStore()
	sg, err := graph.LoadJSON(data, store)
	if err != nil {
		return Reloaded{}, err
	}
	return Reloaded{Graph: sg, Store: store}, nil
}

// #endregion watch
