// Package transcript persists room chat messages as one JSON Lines file per
// working directory.
package transcript

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/util/sanitize"
)

// maxNameLength keeps transcript file names under common filesystem limits.
const maxNameLength = 200

// MaxLineBytes bounds one transcript line when reading. Longer lines are
// skipped.
const MaxLineBytes = 1 << 20

// Store appends messages to <dir>/<room token>.jsonl.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Entry
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string, logger *logrus.Entry) *Store {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{dir: dir, logger: logger}
}

// Path returns the transcript file for a working directory.
func (s *Store) Path(workdir string) string {
	name := sanitize.ForRoomToken(workdir)
	if len(name) > maxNameLength {
		sum := sha256.Sum256([]byte(workdir))
		name = "dir_" + hex.EncodeToString(sum[:])
	}
	return filepath.Join(s.dir, name+".jsonl")
}

// Append writes msg as one line to the directory's transcript.
func (s *Store) Append(ctx context.Context, workdir string, msg rooms.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(workdir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// History returns up to limit of the most recent messages, oldest first.
// A limit of zero or less returns every message. Corrupt and overlong
// lines are skipped.
func (s *Store) History(ctx context.Context, workdir string, limit int) ([]rooms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(workdir))
	if err != nil {
		if os.IsNotExist(err) {
			return []rooms.Message{}, nil
		}
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	msgs := []rooms.Message{}
	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, n, readErr := readLine(reader, MaxLineBytes)
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("failed to read transcript: %w", readErr)
		}
		switch {
		case n > MaxLineBytes:
			s.logger.WithFields(logrus.Fields{"directory": workdir, "bytes": n}).Warn("Skipping overlong transcript line")
		case len(line) > 0:
			var msg rooms.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				s.logger.WithError(err).WithField("directory", workdir).Warn("Skipping corrupt transcript line")
			} else {
				msgs = append(msgs, msg)
			}
		}
		if readErr == io.EOF {
			break
		}
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// readLine returns the next line without its terminator and the line's
// full length. Past max bytes the rest of the line is consumed but not kept.
func readLine(r *bufio.Reader, limit int) ([]byte, int, error) {
	var line []byte
	n := 0
	for {
		chunk, err := r.ReadSlice('\n')
		n += len(chunk)
		if n <= limit+1 {
			line = append(line, chunk...)
		} else {
			line = nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			n--
		}
		return trimmed, n, err
	}
}

// Clear deletes the directory's transcript.
func (s *Store) Clear(ctx context.Context, workdir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(workdir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}
