package watch

import "github.com/fsnotify/fsnotify"

// eventSource is the subset of *fsnotify.Watcher the notifier uses.
type eventSource interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifySource struct {
	w *fsnotify.Watcher
}

func newFSNotifySource() (eventSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifySource{w: w}, nil
}

func (s *fsnotifySource) Add(name string) error         { return s.w.Add(name) }
func (s *fsnotifySource) Close() error                  { return s.w.Close() }
func (s *fsnotifySource) Events() <-chan fsnotify.Event { return s.w.Events }
func (s *fsnotifySource) Errors() <-chan error          { return s.w.Errors }
