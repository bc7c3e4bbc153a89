package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newMiniRedisWriter(t *testing.T) (*RedisWriter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	w, err := NewRedisWriter(context.Background(), "redis://"+mr.Addr(), "docuparse:")
	if err != nil {
		t.Fatalf("NewRedisWriter() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, mr
}

func TestRedisWriteIsConditional(t *testing.T) {
	ctx := context.Background()
	w, mr := newMiniRedisWriter(t)

	written, err := w.WriteData(ctx, Payload{"/data/a.png": {"text": "first"}}, false)
	if err != nil || !written {
		t.Fatalf("first write = %v, %v", written, err)
	}

	written, err = w.WriteData(ctx, Payload{"/data/a.png": {"text": "second"}}, false)
	if err != nil || written {
		t.Fatalf("second write = %v, %v, want false", written, err)
	}

	if !mr.Exists("docuparse:/data/a.png") {
		t.Fatal("key was not stored under the prefix")
	}

	doc, ok, err := w.Read(ctx, "/data/a.png")
	if err != nil || !ok {
		t.Fatalf("Read() = %v, %v", ok, err)
	}
	if doc["text"] != "first" || doc["_id"] != "/data/a.png" {
		t.Errorf("record = %v", doc)
	}
}

func TestRedisForceOverwrites(t *testing.T) {
	ctx := context.Background()
	w, _ := newMiniRedisWriter(t)

	w.WriteData(ctx, Payload{"/k": {"text": "old"}}, false)
	written, err := w.WriteData(ctx, Payload{"/k": {"text": "new"}}, true)
	if err != nil || !written {
		t.Fatalf("forced write = %v, %v", written, err)
	}

	doc, _, _ := w.Read(ctx, "/k")
	if doc["text"] != "new" {
		t.Errorf("text = %v, want new", doc["text"])
	}
}

func TestRedisExistsAndCount(t *testing.T) {
	ctx := context.Background()
	w, mr := newMiniRedisWriter(t)

	mr.Set("unrelated", "x")
	w.WriteData(ctx, Payload{"/a": {"text": "a"}}, false)
	w.WriteData(ctx, Payload{"/b": {"text": "b"}}, false)

	if ok, err := w.Exists(ctx, "/a"); err != nil || !ok {
		t.Errorf("Exists(/a) = %v, %v", ok, err)
	}
	if ok, _ := w.Exists(ctx, "/c"); ok {
		t.Error("Exists(/c) = true")
	}
	if n, err := w.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, want 2", n, err)
	}

	if _, ok, err := w.Read(ctx, "/c"); ok || err != nil {
		t.Errorf("Read(/c) = %v, %v", ok, err)
	}
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisWriter(context.Background(), "redis://"+addr, ""); err == nil {
		t.Error("expected a connection error")
	}
	if _, err := NewRedisWriter(context.Background(), "not a url", ""); err == nil {
		t.Error("expected a URL error")
	}
}
