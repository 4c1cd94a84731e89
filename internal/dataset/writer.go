package dataset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644

	fileTimeFormat = "20060102T150405Z"
)

// file is the subset of *os.File the writer needs
type file interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

type openFunc func(path string) (file, error)

func openOS(path string) (file, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, defaultFilePerm)
}

type settings struct {
	mode       JSONMode
	marker     string
	flushEvery int
	sync       bool
	observer   Observer
	now        func() time.Time
	log        logger.Logger
	open       openFunc
}

func defaultSettings() settings {
	return settings{
		mode:       JSONLines,
		flushEvery: 1,
		sync:       true,
		observer:   Observers(),
		now:        time.Now,
		log:        logger.Nop(),
		open:       openOS,
	}
}

// Option configures a Writer or Rotator
type Option func(*settings)

func WithJSONMode(mode JSONMode) Option {
	return func(s *settings) { s.mode = mode }
}

// WithNoDataMarker sets the CSV cell text for absent values
func WithNoDataMarker(marker string) Option {
	return func(s *settings) { s.marker = marker }
}

// WithFlushEvery batches n records per write. A crash loses at most the
// unflushed batch.
func WithFlushEvery(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.flushEvery = n
		}
	}
}

// WithSync controls whether every flush is followed by fsync
func WithSync(sync bool) Option {
	return func(s *settings) { s.sync = sync }
}

func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func WithLogger(log logger.Logger) Option {
	return func(s *settings) { s.log = log }
}

// Writer appends records to a single dataset file. The file is created
// on the first Append; the header and schema sidecar are written once,
// when the file is created.
type Writer struct {
	settings

	path   string
	format Format
	schema *telemetry.Schema
	enc    encoder

	f        file
	opened   bool
	closed   bool
	framed   bool // header and trailer are on disk
	size     int64
	objects  int // array objects on disk plus pending
	records  int
	written  int64
	openedAt time.Time
	appended bool

	pending  bytes.Buffer
	pendingN int
}

// Open prepares a writer for path. The parent directory is created now;
// the file itself on the first Append.
func Open(path string, format Format, schema *telemetry.Schema, opts ...Option) (*Writer, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return open(path, format, schema, s)
}

func open(path string, format Format, schema *telemetry.Schema, s settings) (*Writer, error) {
	errFactory := errors.New()

	if strings.TrimSpace(path) == "" {
		return nil, errFactory.New(ErrInvalidPath)
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if _, err := ParseJSONMode(string(s.mode)); err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, errFactory.New(ErrNoSchema)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrWriterIO, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	return &Writer{
		settings: s,
		path:     path,
		format:   format,
		schema:   schema,
		enc:      newEncoder(format, s.mode, schema, s.marker),
	}, nil
}

// Path returns the file being written. Before the first Append it is the
// requested path; a schema change may move it to a new name.
func (w *Writer) Path() string { return w.path }

// Records returns how many records this writer has flushed
func (w *Writer) Records() int { return w.records }

// Pending returns how many records are buffered but not yet on disk
func (w *Writer) Pending() int { return w.pendingN }

// Append buffers rec and flushes the batch once it is full. Rows are
// never rewritten; a failed flush is cut back to the last complete row.
func (w *Writer) Append(rec telemetry.Record) error {
	errFactory := errors.New()

	if w.closed {
		return errFactory.New(ErrWriterClosed)
	}
	if !w.schema.Equal(rec.Schema) {
		return errFactory.New(ErrSchemaMismatch)
	}

	if err := w.ensureOpen(); err != nil {
		return err
	}

	row, err := w.enc.row(rec, w.objects == 0)
	if err != nil {
		return errFactory.Wrap(ErrWriterIO, err)
	}
	w.pending.Write(row)
	w.pendingN++
	w.objects++

	if w.pendingN >= w.flushEvery {
		return w.Flush()
	}
	return nil
}

// Flush writes the pending batch with a single write
func (w *Writer) Flush() error {
	if w.pendingN == 0 || w.f == nil {
		return nil
	}

	var buf bytes.Buffer
	offset := w.size
	if w.framed {
		offset -= int64(len(w.enc.trailer()))
	} else {
		buf.Write(w.enc.header())
	}
	buf.Write(w.pending.Bytes())
	buf.Write(w.enc.trailer())

	batch := w.pendingN
	w.pending.Reset()
	w.pendingN = 0

	n, err := w.f.WriteAt(buf.Bytes(), offset)
	if err == nil && w.sync {
		err = w.f.Sync()
	}
	if err != nil {
		w.objects -= batch
		w.rollback()
		return errors.New().WithData(ErrWriterIO, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "write_batch",
			Path:  w.path,
			Error: err.Error(),
		})
	}

	end := offset + int64(n)
	w.written += end - w.size
	w.size = end
	w.framed = true
	w.records += batch

	return nil
}

// rollback restores the file to its last flushed state
func (w *Writer) rollback() {
	if err := w.f.Truncate(w.size); err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("Failed to truncate partial batch")
		return
	}
	if trailer := w.enc.trailer(); w.framed && len(trailer) > 0 {
		if _, err := w.f.WriteAt(trailer, w.size-int64(len(trailer))); err != nil {
			w.log.Error().Err(err).Str("path", w.path).Msg("Failed to restore dataset trailer")
		}
	}
}

func (w *Writer) ensureOpen() error {
	if w.opened {
		return nil
	}
	errFactory := errors.New()

	state, err := inspect(w.path, w.format, w.mode, w.marker, w.schema)
	if err != nil {
		return errFactory.Wrap(ErrWriterIO, err)
	}
	if state == resumeIncompatible {
		next := NextPath(w.path, w.format, w.mode, w.now())
		w.log.Warn().
			Str("path", w.path).
			Str("next", next).
			Msg("Existing dataset has a different schema, starting a new file")
		w.path = next
		state = resumeFresh
	}

	f, err := w.open(w.path)
	if err != nil {
		return errFactory.Wrap(ErrWriterIO, err)
	}

	if state == resumeAppend {
		if err := w.resume(f); err != nil {
			f.Close()
			return err
		}
	} else {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return errFactory.Wrap(ErrWriterIO, err)
		}
		if err := writeSidecar(w.path, &sidecar{
			Format:    w.format,
			JSONMode:  w.jsonMode(),
			NoData:    w.marker,
			CreatedAt: w.now().UTC(),
			Schema:    w.schema,
		}); err != nil {
			f.Close()
			return errFactory.Wrap(ErrWriterIO, err)
		}
	}

	w.f = f
	w.opened = true
	w.openedAt = w.now()

	w.log.Info().
		Str("path", w.path).
		Str("format", string(w.format)).
		Bool("appended", w.appended).
		Int("fields", w.schema.Len()).
		Msg("Dataset opened")

	w.observer.FileOpened(w.info())

	return nil
}

func (w *Writer) resume(f file) error {
	errFactory := errors.New()

	info, err := os.Stat(w.path)
	if err != nil {
		return errFactory.Wrap(ErrWriterIO, err)
	}
	size := info.Size()

	if w.format == FormatJSON && w.mode == JSONArray {
		newSize, objects, err := repairArray(f, size)
		if err != nil {
			return errFactory.Wrap(ErrWriterIO, err)
		}
		w.size, w.objects = newSize, objects
	} else {
		newSize, err := repairLines(f, size)
		if err != nil {
			return errFactory.Wrap(ErrWriterIO, err)
		}
		w.size = newSize
	}

	if w.size != size {
		w.log.Warn().
			Str("path", w.path).
			Int64("dropped_bytes", size-w.size).
			Msg("Repaired torn dataset tail")
	}

	w.framed = w.size > 0
	w.appended = true

	if !w.framed {
		// Nothing survived; the schema sidecar may still be reused as is
		return nil
	}
	if _, err := os.Stat(sidecarPath(w.path)); err != nil {
		if err := writeSidecar(w.path, &sidecar{
			Format:    w.format,
			JSONMode:  w.jsonMode(),
			NoData:    w.marker,
			CreatedAt: w.now().UTC(),
			Schema:    w.schema,
		}); err != nil {
			return errFactory.Wrap(ErrWriterIO, err)
		}
	}

	return nil
}

func (w *Writer) jsonMode() JSONMode {
	if w.format == FormatJSON {
		return w.mode
	}
	return ""
}

func (w *Writer) info() FileInfo {
	return FileInfo{
		Path:     w.path,
		Format:   w.format,
		JSONMode: w.jsonMode(),
		Appended: w.appended,
		OpenedAt: w.openedAt,
	}
}

// Close flushes pending records and releases the file. It is safe to call
// more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if !w.opened {
		return nil
	}

	flushErr := w.Flush()

	var closeErr error
	if err := w.f.Close(); err != nil {
		closeErr = errors.New().Wrap(ErrWriterIO, err)
	}

	w.observer.FileClosed(FileStats{
		FileInfo: w.info(),
		Records:  w.records,
		Bytes:    w.written,
		ClosedAt: w.now(),
	})

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// NextPath derives a new, unused dataset name from base and t:
// <stem>_<UTC time>[_n]<ext>
func NextPath(base string, format Format, mode JSONMode, t time.Time) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = format.Ext(mode)
	}

	name := fmt.Sprintf("%s_%s", stem, t.UTC().Format(fileTimeFormat))
	candidate := name + ext
	for i := 1; exists(candidate) || exists(sidecarPath(candidate)); i++ {
		candidate = fmt.Sprintf("%s_%d%s", name, i, ext)
	}

	return candidate
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
