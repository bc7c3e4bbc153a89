package processor

import (
	"sort"
	"strings"
)

// Registry maps file extensions to extractors. Matching ignores case and the
// leading dot. A Registry must not be modified once dispatching has started.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// DefaultRegistry maps .pdf to pdf and .png, .jpeg, .jpg to img
func DefaultRegistry(pdf, img Extractor) *Registry {
	r := NewRegistry()
	r.Register(".pdf", pdf)
	for _, ext := range []string{".png", ".jpeg", ".jpg"} {
		r.Register(ext, img)
	}
	return r
}

// Register binds ext to extractor, replacing any previous binding
func (r *Registry) Register(ext string, extractor Extractor) {
	r.extractors[normalizeExt(ext)] = extractor
}

// Resolve returns the extractor for ext
func (r *Registry) Resolve(ext string) (Extractor, bool) {
	e, ok := r.extractors[normalizeExt(ext)]
	return e, ok
}

// Extensions lists the registered extensions in sorted order
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
