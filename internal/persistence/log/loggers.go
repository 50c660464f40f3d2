package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"lifesupport.ai/internal/protocol"
)

// JSONLZstdWriter appends JSON lines to hourly zstd-compressed files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditLogger writes zone events as compressed JSONL under <dataDir>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(AuditDir(dataDir), "audit")}
}

func AuditDir(dataDir string) string { return filepath.Join(dataDir, "audit") }

func (l *AuditLogger) WriteZoneEvent(ev protocol.ZoneEvent) error { return l.w.Write(ev) }
func (l *AuditLogger) Close() error                               { return l.w.Close() }

// Filter selects audit records. Zero fields match everything.
type Filter struct {
	World  string
	Kind   string
	Action string
	Anchor *[3]int
	// Coord matches events whose ownership change touched this coordinate.
	Coord *[3]int
}

func (f Filter) match(ev protocol.ZoneEvent) bool {
	if f.World != "" && ev.World != f.World {
		return false
	}
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if f.Anchor != nil && (ev.Anchor == nil || *ev.Anchor != *f.Anchor) {
		return false
	}
	if f.Coord != nil {
		for _, c := range ev.Coords {
			if c == *f.Coord {
				return true
			}
		}
		return false
	}
	return true
}

// ReadAudit decodes every audit file in dir, oldest first, and returns matching events.
func ReadAudit(dir string, f Filter) ([]protocol.ZoneEvent, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []protocol.ZoneEvent
	for _, name := range names {
		evs, err := readAuditFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, ev := range evs {
			if f.match(ev) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func readAuditFile(path string) ([]protocol.ZoneEvent, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []protocol.ZoneEvent
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var ev protocol.ZoneEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}
