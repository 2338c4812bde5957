package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const (
	maxLineBytes = 1 << 20
	pollInterval = 250 * time.Millisecond
)

// Position is a byte offset into a log file. Reading resumes from it.
type Position int64

// Last returns up to n trailing lines of path and the position of the end of
// the file. A missing file yields no lines at position zero. n <= 0 returns
// every line.
func Last(path string, n int) ([]string, Position, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var kept []string
	err = scanLines(file, func(line string) {
		kept = append(kept, line)
		if n > 0 && len(kept) > n {
			kept = kept[1:]
		}
	})
	if err != nil {
		return nil, 0, err
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("log offset: %w", err)
	}
	return kept, Position(end), nil
}

// ReadFrom returns the complete lines written after pos and the position
// following the last one. A file shorter than pos was truncated or rotated and
// is read from the start.
func ReadFrom(path string, pos Position) ([]string, Position, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, pos, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, pos, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, pos, fmt.Errorf("log path %q is a directory", path)
	}
	if int64(pos) > info.Size() || pos < 0 {
		pos = 0
	}
	if _, err := file.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, pos, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	next := pos
	for {
		chunk, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial trailing line is picked up once its newline lands.
			break
		}
		if err != nil {
			return lines, next, fmt.Errorf("read log file: %w", err)
		}
		next += Position(len(chunk))
		lines = append(lines, trimNewline(chunk))
	}
	return lines, next, nil
}

// Follow polls path from pos and calls emit for each new line until ctx is
// done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, pos Position, emit func(string)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		lines, next, err := ReadFrom(path, pos)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		pos = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s
}
