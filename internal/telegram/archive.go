package telegram

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/ingest"
)

// maxArchiveLine bounds one JSON message in an archive file.
const maxArchiveLine = 4 * 1024 * 1024

// ArchiveSource reads chat exports stored as JSON lines of Bot API
// messages, one file per chat at <dir>/<chat>.jsonl. A file is kept in
// memory and reloaded when its size or modification time changes.
type ArchiveSource struct {
	dir string

	mu    sync.Mutex
	chats map[string]*archiveFile
}

type archiveFile struct {
	msgs    map[int]*tgbotapi.Message
	size    int64
	modTime time.Time
}

// NewArchiveSource creates a source over dir.
func NewArchiveSource(dir string) *ArchiveSource {
	return &ArchiveSource{dir: dir, chats: make(map[string]*archiveFile)}
}

// ArchivePath returns the archive file for chat under dir. Files are named
// after the canonical chat without its @, so usernames are lower-case.
func ArchivePath(dir, chat string) string {
	name := strings.TrimPrefix(chatref.Canonical(chat), "@")
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return filepath.Join(dir, name+".jsonl")
}

// Fetch returns the archived messages among ids.
func (s *ArchiveSource) Fetch(ctx context.Context, chat string, ids []int) ([]ingest.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := s.load(chat)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := msgs[id]; ok {
			out = append(out, ConvertMessage(id, m))
		}
	}
	return out, nil
}

// LastMessageID returns the highest message id archived for chat.
func (s *ArchiveSource) LastMessageID(chat string) (int, error) {
	msgs, err := s.load(chat)
	if err != nil {
		return 0, err
	}
	last := 0
	for id := range msgs {
		if id > last {
			last = id
		}
	}
	return last, nil
}

func (s *ArchiveSource) load(chat string) (map[int]*tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := ArchivePath(s.dir, chat)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no archive for chat %q at %s", chat, path)
		}
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if cached, ok := s.chats[path]; ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.msgs, nil
	}

	msgs := make(map[int]*tgbotapi.Message)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxArchiveLine)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		var m tgbotapi.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if m.MessageID <= 0 {
			return nil, fmt.Errorf("%s:%d: missing message_id", path, line)
		}
		msgs[m.MessageID] = &m
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}

	s.chats[path] = &archiveFile{msgs: msgs, size: info.Size(), modTime: info.ModTime()}
	return msgs, nil
}

var _ ingest.Source = (*ArchiveSource)(nil)
