// Package session implements the daemon-side session manager: the active
// map of live sessions, their append-only stream logs, and the read-side
// context builders used to feed LLM requests.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omnish-dev/omnish/internal/ansiutil"
	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/tracker"
)

// ErrUnknownSession is returned by any operation naming a session id not
// currently in the active map.
var ErrUnknownSession = errors.New("session: unknown session")

// ErrPendingExists is reserved for future use by callers that want to
// assert the at-most-one-pending-command invariant explicitly; the tracker
// itself enforces the invariant internally.
var ErrPendingExists = errors.New("session: pending command already exists")

// ActiveSession is one live shell's in-memory state.
type ActiveSession struct {
	meta    model.Session
	dir     string
	stream  *os.File
	pos     int64
	tracker *tracker.Tracker
	records []model.CommandRecord
	mu      sync.Mutex
}

// Manager owns the active-sessions map under Manager.mu; each session's
// stream writes, tracker and records are serialized by that session's own
// mutex, and reads that only touch on-disk files release both locks first.
type Manager struct {
	baseDir string

	mu     sync.Mutex
	active map[string]*ActiveSession
}

// New creates a Manager rooted at baseDir (created if absent).
func New(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("session: mkdir base: %w", err)
	}
	return &Manager{baseDir: baseDir, active: make(map[string]*ActiveSession)}, nil
}

// Register creates a session directory, persists its metadata, and opens
// the append-only stream writer.
func (m *Manager) Register(sessionID, parentID string, attrs map[string]string) error {
	now := time.Now().UTC()
	dirName := now.Format("20060102T150405Z") + "_" + sessionID
	dir := filepath.Join(m.baseDir, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}

	meta := model.Session{ID: sessionID, ParentID: parentID, Started: now, Attrs: attrs}
	if err := writeMetaJSON(dir, meta); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "stream.bin"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("session: open stream: %w", err)
	}

	as := &ActiveSession{
		meta:    meta,
		dir:     dir,
		stream:  f,
		tracker: tracker.New(sessionID),
	}

	m.mu.Lock()
	m.active[sessionID] = as
	m.mu.Unlock()

	logger.Info("session: registered", "session_id", sessionID, "dir", dir)
	return nil
}

// WriteIO appends one stream entry and feeds it through the command
// tracker, returning any command records the tracker sealed as a result.
func (m *Manager) WriteIO(sessionID string, tsMs int64, dir model.Direction, data []byte) ([]model.CommandRecord, error) {
	as, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := appendStreamEntry(as.stream, tsMs, dir, data); err != nil {
		return nil, fmt.Errorf("session: append stream entry: %w", err)
	}
	as.pos += int64(13 + len(data))

	var sealed []model.CommandRecord
	switch dir {
	case model.DirInput:
		as.tracker.FeedInput(data)
	case model.DirOutput:
		sealed = as.tracker.FeedOutput(data, tsMs)
	}
	as.records = append(as.records, sealed...)
	return sealed, nil
}

// EndSession stamps the ended_at timestamp, re-persists metadata, flushes
// commands.json, and drops the session from the active map (closing its
// stream writer).
func (m *Manager) EndSession(sessionID string) error {
	as, err := m.get(sessionID)
	if err != nil {
		return err
	}

	as.mu.Lock()
	now := time.Now().UTC()
	as.meta.Ended = &now
	metaErr := writeMetaJSON(as.dir, as.meta)
	cmdErr := writeCommandsJSON(as.dir, as.records)
	as.stream.Close()
	as.mu.Unlock()

	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()

	if metaErr != nil {
		return metaErr
	}
	return cmdErr
}

// GetCommands returns the sealed records for sessionID; the command still
// pending in the session's tracker is not included.
func (m *Manager) GetCommands(sessionID string) ([]model.CommandRecord, error) {
	as, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	out := make([]model.CommandRecord, len(as.records))
	copy(out, as.records)
	return out, nil
}

func (m *Manager) get(sessionID string) (*ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.active[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return as, nil
}

// BuildSessionContext reads sessionID's stream log for [fromOffset, toOffset),
// strips ANSI, lossy-decodes, and truncates to maxChars.
func (m *Manager) BuildSessionContext(sessionID string, fromOffset, toOffset int64, maxChars int) (string, error) {
	as, err := m.get(sessionID)
	if err != nil {
		return "", err
	}
	as.mu.Lock()
	dir := as.dir
	as.mu.Unlock()

	text, err := readStreamRangeText(dir, fromOffset, toOffset)
	if err != nil {
		return "", err
	}
	return truncate(text, maxChars), nil
}

// BuildAllSessionsContext snapshots every active session under the lock,
// then, with the lock released, collects each stream's contents with a
// per-session header, truncated overall to maxChars.
func (m *Manager) BuildAllSessionsContext(maxChars int) string {
	type snapshot struct {
		id  string
		dir string
		pos int64
	}

	m.mu.Lock()
	snaps := make([]snapshot, 0, len(m.active))
	for id, as := range m.active {
		as.mu.Lock()
		snaps = append(snaps, snapshot{id: id, dir: as.dir, pos: as.pos})
		as.mu.Unlock()
	}
	m.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].id < snaps[j].id })

	var b strings.Builder
	for _, s := range snaps {
		text, err := readStreamRangeText(s.dir, 0, s.pos)
		if err != nil {
			logger.Warn("session: read context failed", "session_id", s.id, "error", err)
			continue
		}
		fmt.Fprintf(&b, "=== session %s ===\n%s\n", s.id, text)
	}
	return truncate(b.String(), maxChars)
}

// CollectRecentCommands gathers every sealed command record with
// StartedAt >= since across active sessions and sessions already persisted
// to disk, used by the daemon's periodic note-generation jobs.
func (m *Manager) CollectRecentCommands(since time.Time) []model.CommandRecord {
	seen := make(map[string]bool)
	var out []model.CommandRecord

	m.mu.Lock()
	actives := make([]*ActiveSession, 0, len(m.active))
	for _, as := range m.active {
		actives = append(actives, as)
	}
	m.mu.Unlock()

	for _, as := range actives {
		as.mu.Lock()
		for _, rec := range as.records {
			if !rec.StartedAt.Before(since) {
				out = append(out, rec)
				seen[rec.ID] = true
			}
		}
		as.mu.Unlock()
	}

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.baseDir, entry.Name(), "commands.json"))
		if err != nil {
			continue
		}
		var recs []model.CommandRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			continue
		}
		for _, rec := range recs {
			if seen[rec.ID] || rec.StartedAt.Before(since) {
				continue
			}
			out = append(out, rec)
			seen[rec.ID] = true
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

func writeMetaJSON(dir string, meta model.Session) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0644)
}

func writeCommandsJSON(dir string, records []model.CommandRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal commands: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "commands.json"), data, 0644)
}

func readStreamRangeText(dir string, fromOffset, toOffset int64) (string, error) {
	f, err := os.Open(filepath.Join(dir, "stream.bin"))
	if err != nil {
		return "", fmt.Errorf("session: open stream for read: %w", err)
	}
	defer f.Close()

	var out []byte
	var pos int64
	for {
		entry, n, err := readStreamEntry(f)
		if err != nil {
			break
		}
		entryStart := pos
		entryEnd := pos + int64(n)
		pos = entryEnd
		if entryEnd <= fromOffset {
			continue
		}
		if toOffset > 0 && entryStart >= toOffset {
			break
		}
		out = append(out, entry.Data...)
	}
	return ansiutil.ToUTF8Lossy(ansiutil.Strip(out)), nil
}
