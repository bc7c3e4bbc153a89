package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/minoad/docuparse/internal/errors"
	"github.com/minoad/docuparse/internal/logging"
	"github.com/minoad/docuparse/internal/processor"
	"github.com/minoad/docuparse/internal/storage"
)

// stubExtractor returns a canned result and counts calls per path
type stubExtractor struct {
	name   string
	failOn map[string]error
	block  bool
	// hang blocks Extract until closed, ignoring ctx
	hang chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func newStub(name string) *stubExtractor {
	return &stubExtractor{name: name, failOn: map[string]error{}, calls: map[string]int{}}
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(ctx context.Context, path string) (*processor.Result, error) {
	s.mu.Lock()
	s.calls[path]++
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.hang != nil {
		<-s.hang
		return processor.NewImageResult("late"), nil
	}
	if err, ok := s.failOn[filepath.Base(path)]; ok {
		return nil, err
	}
	if s.name == "pdf" {
		return processor.NewPDFResult([]processor.PageRecord{{
			PageNumber:   1,
			NativeText:   "Hello",
			CombinedText: []string{"World", "Hello"},
		}}), nil
	}
	return processor.NewImageResult("text of " + filepath.Base(path)), nil
}

func (s *stubExtractor) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// spyWriter counts WriteData calls on top of an in-memory store
type spyWriter struct {
	*storage.MemoryWriter
	name     string
	writes   atomic.Int32
	writeErr error
}

func newSpy(name string) *spyWriter {
	return &spyWriter{MemoryWriter: storage.NewMemoryWriter(), name: name}
}

func (s *spyWriter) Name() string { return s.name }

func (s *spyWriter) WriteData(ctx context.Context, payload storage.Payload, force bool) (bool, error) {
	s.writes.Add(1)
	if s.writeErr != nil {
		return false, s.writeErr
	}
	return s.MemoryWriter.WriteData(ctx, payload, force)
}

type fixture struct {
	dir     string
	pdf     *stubExtractor
	img     *stubExtractor
	writers []*spyWriter
	logOut  io.Writer
}

func newFixture(t *testing.T, names []string, writers ...string) *fixture {
	t.Helper()

	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if len(writers) == 0 {
		writers = []string{"memory"}
	}

	f := &fixture{dir: dir, pdf: newStub("pdf"), img: newStub("image")}
	for _, w := range writers {
		f.writers = append(f.writers, newSpy(w))
	}
	return f
}

func (f *fixture) dispatcher(t *testing.T, concurrency int, timeout time.Duration) *Dispatcher {
	t.Helper()

	writers := make([]storage.Writer, len(f.writers))
	for i, w := range f.writers {
		writers[i] = w
	}

	logOut := f.logOut
	if logOut == nil {
		logOut = io.Discard
	}

	d, err := NewDispatcher(Config{
		Registry:          processor.DefaultRegistry(f.pdf, f.img),
		Writers:           writers,
		Concurrency:       concurrency,
		ProcessingTimeout: timeout,
		Logger:            logging.NewLoggerWithWriter("dispatch", logOut),
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func (f *fixture) key(name string) string {
	return CanonicalKey(filepath.Join(f.dir, name))
}

func TestRunPDFAndTextFile(t *testing.T) {
	f := newFixture(t, []string{"report.pdf", "notes.txt"})
	d := f.dispatcher(t, 1, 0)

	report, err := d.Run(context.Background(), f.dir, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := f.writers[0].writes.Load(); got != 1 {
		t.Fatalf("WriteData called %d times, want 1", got)
	}
	if report.Written != 1 || report.Extracted != 1 || report.Candidates != 1 {
		t.Errorf("report = %+v", report)
	}

	doc, ok, _ := f.writers[0].Read(context.Background(), f.key("report.pdf"))
	if !ok {
		t.Fatalf("no record under %s", f.key("report.pdf"))
	}
	if doc["merged_text"] != "World Hello" {
		t.Errorf("merged_text = %v", doc["merged_text"])
	}
	if _, ok := doc["pages_data"]; !ok {
		t.Error("pages_data missing")
	}
	if n, _ := f.writers[0].Count(context.Background()); n != 1 {
		t.Errorf("store holds %d records, want 1", n)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, []string{"a.png", "b.JPG"})
	d := f.dispatcher(t, 1, 0)

	if _, err := d.Run(context.Background(), f.dir, Options{}); err != nil {
		t.Fatal(err)
	}
	report, err := d.Run(context.Background(), f.dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if f.img.total() != 2 {
		t.Errorf("extractor ran %d times across both runs, want 2", f.img.total())
	}
	if f.writers[0].writes.Load() != 2 {
		t.Errorf("WriteData called %d times, want 2", f.writers[0].writes.Load())
	}
	if report.Planned != 0 || report.Skipped != 2 {
		t.Errorf("second report = %+v", report)
	}
}

func TestRunForceRewrites(t *testing.T) {
	f := newFixture(t, []string{"a.png"})
	d := f.dispatcher(t, 1, 0)
	ctx := context.Background()

	f.writers[0].MemoryWriter.WriteData(ctx, storage.Payload{f.key("a.png"): {"text": "stale"}}, false)

	report, err := d.Run(ctx, f.dir, Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Written != 1 {
		t.Errorf("report = %+v", report)
	}

	doc, _, _ := f.writers[0].Read(ctx, f.key("a.png"))
	if doc["text"] != "text of a.png" {
		t.Errorf("text = %v, want it replaced", doc["text"])
	}
}

func TestDryRunDoesNotMutate(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.png", "c.jpeg"}, "mongo", "redis")
	d := f.dispatcher(t, 1, 0)

	for _, force := range []bool{false, true} {
		report, err := d.Run(context.Background(), f.dir, Options{DryRun: true, Force: force})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Planned != 6 || !report.DryRun {
			t.Errorf("report = %+v", report)
		}
	}

	if f.pdf.total()+f.img.total() != 0 {
		t.Error("dry run must not extract")
	}
	for _, w := range f.writers {
		if w.writes.Load() != 0 {
			t.Errorf("%s received %d writes during a dry run", w.name, w.writes.Load())
		}
		if n, _ := w.Count(context.Background()); n != 0 {
			t.Errorf("%s holds %d records", w.name, n)
		}
	}
}

func TestExtensionFiltering(t *testing.T) {
	f := newFixture(t, []string{"a.PDF", "b.Png", "c.jpeg", "d.jpg", "e.txt", "f.tiff", "noext", ".hidden"})
	if err := os.Mkdir(filepath.Join(f.dir, "nested.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	d := f.dispatcher(t, 1, 0)

	report, err := d.Run(context.Background(), f.dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if report.Candidates != 4 || report.Written != 4 {
		t.Errorf("report = %+v", report)
	}
	if f.pdf.total() != 1 || f.img.total() != 3 {
		t.Errorf("pdf calls = %d, image calls = %d", f.pdf.total(), f.img.total())
	}
}

func TestExtractOncePerFileAcrossWriters(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.png"}, "mongo", "postgres", "redis")
	ctx := context.Background()

	// postgres already holds a.pdf
	f.writers[1].MemoryWriter.WriteData(ctx, storage.Payload{f.key("a.pdf"): {"merged_text": "old"}}, false)

	d := f.dispatcher(t, 1, 0)
	report, err := d.Run(ctx, f.dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if f.pdf.calls[filepath.Join(f.dir, "a.pdf")] != 1 || f.img.calls[filepath.Join(f.dir, "b.png")] != 1 {
		t.Errorf("pdf calls = %v, image calls = %v", f.pdf.calls, f.img.calls)
	}
	if report.Candidates != 6 || report.Planned != 5 || report.Written != 5 || report.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
	if f.writers[1].writes.Load() != 1 {
		t.Errorf("postgres received %d writes, want 1", f.writers[1].writes.Load())
	}

	doc, _, _ := f.writers[1].Read(ctx, f.key("a.pdf"))
	if doc["merged_text"] != "old" {
		t.Error("existing record was modified without force")
	}
}

func TestInvalidDirectory(t *testing.T) {
	f := newFixture(t, []string{"a.png"})
	d := f.dispatcher(t, 1, 0)

	for _, dir := range []string{filepath.Join(f.dir, "missing"), filepath.Join(f.dir, "a.png")} {
		_, err := d.Run(context.Background(), dir, Options{})
		if !apperrors.HasCode(err, apperrors.ErrorInvalidDirectory) {
			t.Errorf("Run(%s) error = %v, want INVALID_DIRECTORY", filepath.Base(dir), err)
		}
	}
	if f.writers[0].writes.Load() != 0 {
		t.Error("nothing may be written for an invalid directory")
	}
}

func TestFileFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, []string{"a.png", "b.png", "c.pdf"})
	f.img.failOn["a.png"] = apperrors.NewDecodeFailedError("a.png", errors.New("truncated"))
	f.pdf.failOn["c.pdf"] = apperrors.NewDocumentOpenError("c.pdf", errors.New("no trailer"))
	d := f.dispatcher(t, 1, 0)

	report, err := d.Run(context.Background(), f.dir, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Written != 1 || len(report.Failed) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Failed[0].Category != "decode" || report.Failed[1].Category != "document_open" {
		t.Errorf("failures = %+v", report.Failed)
	}
	if ok, _ := f.writers[0].Exists(context.Background(), f.key("b.png")); !ok {
		t.Error("b.png was not stored")
	}
}

func TestWriteErrorAbortsRun(t *testing.T) {
	f := newFixture(t, []string{"a.png"})
	f.writers[0].writeErr = apperrors.NewStorageFailedError("a.png", "memory", errors.New("disk full"))
	d := f.dispatcher(t, 1, 0)

	_, err := d.Run(context.Background(), f.dir, Options{})
	if !apperrors.HasCode(err, apperrors.ErrorStorageFailed) {
		t.Fatalf("expected STORAGE_FAILED, got %v", err)
	}
}

func TestExtractionTimeout(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, s *stubExtractor)
	}{
		{"extractor honors context", func(t *testing.T, s *stubExtractor) { s.block = true }},
		{"extractor ignores context", func(t *testing.T, s *stubExtractor) {
			s.hang = make(chan struct{})
			t.Cleanup(func() { close(s.hang) })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"slow.png", "fast.pdf"})
			tt.prepare(t, f.img)
			d := f.dispatcher(t, 2, 20*time.Millisecond)

			done := make(chan struct{})
			var (
				report *Report
				err    error
			)
			go func() {
				defer close(done)
				report, err = d.Run(context.Background(), f.dir, Options{})
			}()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Run() did not return after the processing timeout")
			}

			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(report.Failed) != 1 || report.Failed[0].Code != string(apperrors.ErrorProcessingTimeout) {
				t.Errorf("failures = %+v", report.Failed)
			}
			if report.Written != 1 {
				t.Errorf("Written = %d, want the PDF stored", report.Written)
			}
			if ok, _ := f.writers[0].Exists(context.Background(), f.key("slow.png")); ok {
				t.Error("timed out file must not be stored")
			}
		})
	}
}

func TestFailureLogCarriesErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, []string{"a.png"})
	f.logOut = &buf
	f.img.failOn["a.png"] = apperrors.NewDecodeFailedError("a.png", errors.New("truncated"))
	d := f.dispatcher(t, 1, 0)

	if _, err := d.Run(context.Background(), f.dir, Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var entry map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]interface{}
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if m["message"] == "Extraction failed" {
			entry = m
		}
	}
	if entry == nil {
		t.Fatalf("no failure entry in %s", buf.String())
	}

	details, ok := entry["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("details = %#v", entry["details"])
	}
	if details["error_code"] != string(apperrors.ErrorDecodeFailed) || details["cause"] != "truncated" {
		t.Errorf("details = %v", details)
	}
}

func TestConcurrentRunWritesEachFileOnce(t *testing.T) {
	var names []string
	for i := 0; i < 12; i++ {
		names = append(names, fmt.Sprintf("scan%02d.png", i))
	}
	f := newFixture(t, names, "mongo", "redis")
	d := f.dispatcher(t, 4, 0)

	report, err := d.Run(context.Background(), f.dir, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if f.img.total() != 12 || report.Written != 24 {
		t.Errorf("extractions = %d, report = %+v", f.img.total(), report)
	}
	for _, w := range f.writers {
		if n, _ := w.Count(context.Background()); n != 12 {
			t.Errorf("%s holds %d records", w.name, n)
		}
	}
}

func TestCanonicalKeyResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.png")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.png")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if CanonicalKey(link) != CanonicalKey(target) {
		t.Errorf("CanonicalKey(link) = %s, want %s", CanonicalKey(link), CanonicalKey(target))
	}
	if !filepath.IsAbs(CanonicalKey("relative.png")) {
		t.Error("keys must be absolute")
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(Config{Writers: []storage.Writer{storage.NewMemoryWriter()}}); err == nil {
		t.Error("missing registry accepted")
	}
	if _, err := NewDispatcher(Config{Registry: processor.NewRegistry()}); err == nil {
		t.Error("missing writers accepted")
	}
}
