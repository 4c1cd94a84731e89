package dataset

import "time"

// FileInfo describes a dataset file when it is opened
type FileInfo struct {
	Path     string
	Format   Format
	JSONMode JSONMode
	Appended bool // resumed an existing file rather than creating one
	OpenedAt time.Time
}

// FileStats describes a dataset file when it is closed. Records and Bytes
// count what this writer added.
type FileStats struct {
	FileInfo
	Records  int
	Bytes    int64
	ClosedAt time.Time
}

// Observer is notified about dataset file lifecycle events
type Observer interface {
	FileOpened(info FileInfo)
	FileClosed(stats FileStats)
}

type multiObserver []Observer

// Observers fans events out to all non-nil observers
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) FileOpened(info FileInfo) {
	for _, o := range m {
		o.FileOpened(info)
	}
}

func (m multiObserver) FileClosed(stats FileStats) {
	for _, o := range m {
		o.FileClosed(stats)
	}
}
