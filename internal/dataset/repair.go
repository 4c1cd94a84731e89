package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

// resumeState is the outcome of inspecting an existing dataset file
type resumeState int

const (
	// resumeFresh: nothing worth keeping, the file can be rewritten
	resumeFresh resumeState = iota
	// resumeAppend: same schema, append after the repaired tail
	resumeAppend
	// resumeIncompatible: different schema, start a new file
	resumeIncompatible
)

const tailChunk = 4096

// inspect decides whether rows can be appended to the file at path
func inspect(path string, format Format, mode JSONMode, marker string, schema *telemetry.Schema) (resumeState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return resumeFresh, nil
	}
	if err != nil {
		return resumeFresh, err
	}
	if info.IsDir() {
		return resumeIncompatible, nil
	}
	if info.Size() == 0 {
		return resumeFresh, nil
	}

	sc, err := readSidecar(path)
	switch {
	case err == nil:
		if !sc.matches(format, mode, marker, schema) {
			return resumeIncompatible, nil
		}
	case format != FormatCSV:
		// JSON rows carry no header; without a declaration we cannot tell
		return resumeIncompatible, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return resumeFresh, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')

	switch {
	case format == FormatJSON && mode == JSONArray:
		if err != nil || line != arrayHeader {
			return resumeIncompatible, nil
		}
		return resumeAppend, nil
	case format == FormatJSON:
		return resumeAppend, nil
	}

	if err != nil {
		// Header was torn before its newline reached disk
		return resumeFresh, nil
	}
	header, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil || !equalStrings(header, schema.Names()) {
		return resumeIncompatible, nil
	}

	return resumeAppend, nil
}

// repairLines cuts a torn last line so the file ends with a newline. It
// returns the new size.
func repairLines(f file, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}

	buf := make([]byte, tailChunk)
	end := size
	for end > 0 {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return size, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			cut := start + int64(i) + 1
			if cut == size {
				return size, nil
			}
			return cut, f.Truncate(cut)
		}
		end = start
	}

	return 0, f.Truncate(0)
}

// repairArray keeps every complete object line of a JSON array dataset and
// rewrites the closing bracket after the last one. It returns the new size
// and the number of objects kept.
func repairArray(f file, size int64) (int64, int, error) {
	r := bufio.NewReader(io.NewSectionReader(f, 0, size))

	first, err := r.ReadString('\n')
	if err != nil || first != arrayHeader {
		return 0, 0, errCorrupt
	}

	goodEnd := int64(len(first))
	offset := goodEnd
	objects := 0

	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			// Torn line without its newline
			break
		}
		offset += int64(len(line))

		body := bytes.TrimSuffix(line, []byte{'\n'})
		if objects > 0 {
			if !bytes.HasPrefix(body, []byte{','}) {
				break
			}
			body = body[1:]
		}
		if len(body) == 0 || body[0] != '{' || !json.Valid(body) {
			break
		}

		objects++
		goodEnd = offset
	}

	if err := f.Truncate(goodEnd); err != nil {
		return size, objects, err
	}
	n, err := f.WriteAt([]byte(arrayTrailer), goodEnd)
	if err != nil {
		return goodEnd, objects, err
	}

	return goodEnd + int64(n), objects, nil
}

var errCorrupt = errors.New("dataset is not a JSON array")

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
