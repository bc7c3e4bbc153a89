package storage

import (
	"context"
	"sync"
	"testing"

	apperrors "github.com/minoad/docuparse/internal/errors"
)

func TestSingleEntryRejectsOtherSizes(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"empty", Payload{}},
		{"nil", nil},
		{"two keys", Payload{"/a": {"text": "a"}, "/b": {"text": "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewMemoryWriter()
			written, err := w.WriteData(context.Background(), tt.payload, false)
			if !apperrors.HasCode(err, apperrors.ErrorStoreUsage) {
				t.Fatalf("expected STORE_USAGE, got %v", err)
			}
			if written {
				t.Error("nothing may be written on a usage error")
			}
			if n, _ := w.Count(context.Background()); n != 0 {
				t.Errorf("store holds %d records, want 0", n)
			}
		})
	}
}

func TestMemoryWriterIdempotentWrite(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()

	written, err := w.WriteData(ctx, Payload{"/data/a.png": {"text": "first"}}, false)
	if err != nil || !written {
		t.Fatalf("first write = %v, %v", written, err)
	}

	written, err = w.WriteData(ctx, Payload{"/data/a.png": {"text": "second"}}, false)
	if err != nil || written {
		t.Fatalf("second write = %v, %v, want false", written, err)
	}

	doc, ok, _ := w.Read(ctx, "/data/a.png")
	if !ok || doc["text"] != "first" {
		t.Errorf("record = %v, want the first write kept", doc)
	}
	if doc["_id"] != "/data/a.png" {
		t.Errorf("_id = %v", doc["_id"])
	}
}

func TestMemoryWriterForceReplaces(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()

	w.WriteData(ctx, Payload{"/k": {"text": "old"}}, false)
	written, err := w.WriteData(ctx, Payload{"/k": {"text": "new"}}, true)
	if err != nil || !written {
		t.Fatalf("forced write = %v, %v", written, err)
	}

	doc, _, _ := w.Read(ctx, "/k")
	if doc["text"] != "new" {
		t.Errorf("text = %v, want new", doc["text"])
	}
	if n, _ := w.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMemoryWriterConcurrentWritesHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.WriteData(ctx, Payload{"/same": {"text": "x"}}, false); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d writers reported success, want 1", wins)
	}
}

func TestMemoryWriterClosed(t *testing.T) {
	w := NewMemoryWriter()
	w.Close()

	if _, err := w.Exists(context.Background(), "/k"); err == nil {
		t.Error("Exists() on a closed store should fail")
	}
	if _, err := w.WriteData(context.Background(), Payload{"/k": {}}, false); err == nil {
		t.Error("WriteData() on a closed store should fail")
	}
}

func TestWithIDDoesNotMutateInput(t *testing.T) {
	doc := Document{"text": "x"}
	out := withID("/k", doc)

	if _, ok := doc["_id"]; ok {
		t.Error("input document was modified")
	}
	if out["_id"] != "/k" || out["text"] != "x" {
		t.Errorf("withID() = %v", out)
	}
}
