package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"tradeScope/internal/model"
)

var ErrNoticeLogClosed = errors.New("notice log closed")

// NoticeLog appends notices to a JSONL file that stays open for the life of
// the process. Every line is flushed as soon as it is written.
type NoticeLog struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// OpenNoticeLog creates the parent directory and opens path for appending.
func OpenNoticeLog(path string) (*NoticeLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create notice dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open notice log: %w", err)
	}
	writer := bufio.NewWriter(file)
	return &NoticeLog{path: path, file: file, writer: writer, enc: json.NewEncoder(writer)}, nil
}

// Path returns the file the log appends to.
func (l *NoticeLog) Path() string {
	return l.path
}

// PutNotices writes a batch ordered by observation time. Notices observed
// at the same instant keep their batch order.
func (l *NoticeLog) PutNotices(notices []model.Notice) error {
	if len(notices) == 0 {
		return nil
	}
	ordered := notices
	if len(notices) > 1 {
		ordered = append([]model.Notice(nil), notices...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].ObservedAt < ordered[j].ObservedAt
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrNoticeLogClosed
	}
	for _, notice := range ordered {
		if err := l.enc.Encode(notice); err != nil {
			return fmt.Errorf("write notice %s: %w", notice.TxHash, err)
		}
		if err := l.writer.Flush(); err != nil {
			return fmt.Errorf("flush notice %s: %w", notice.TxHash, err)
		}
	}
	return nil
}

// Close flushes and closes the file. Later writes fail with
// ErrNoticeLogClosed.
func (l *NoticeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	flushErr := l.writer.Flush()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush notice log: %w", flushErr)
	}
	return closeErr
}
