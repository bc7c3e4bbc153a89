package processor

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/minoad/docuparse/internal/ocr"
)

func init() {
	// pdfcpu must not create a configuration directory in the user's home
	api.DisableConfigDir()
}

// PDFDocument is an opened PDF. Pages are numbered from 1.
type PDFDocument interface {
	NumPages() int
	PageText(page int) (string, error)
	PageImages(page int) ([]EmbeddedImage, error)
	Close() error
}

// PDFOpener opens a PDF for extraction
type PDFOpener func(path string) (PDFDocument, error)

// EmbeddedImage is one raster image referenced by a page, still encoded.
// Err is set instead of Data when the image could not be rendered.
type EmbeddedImage struct {
	Name         string
	ObjectNumber int
	FileType     string
	Data         []byte
	Info         map[string]interface{}
	Err          error
}

// pdfFile reads text through ledongthuc/pdf and images through pdfcpu
type pdfFile struct {
	file   *os.File
	reader *pdf.Reader
	ctx    *model.Context
}

// OpenPDF opens path with both PDF backends
func OpenPDF(path string) (doc PDFDocument, err error) {
	mime, err := sniffFile(path)
	if err != nil {
		return nil, err
	}
	if mime != "application/pdf" {
		return nil, fmt.Errorf("missing %%PDF header (detected %q)", mime)
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text layer: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read image resources: %w", err)
	}

	return &pdfFile{file: f, reader: reader, ctx: ctx}, nil
}

func (p *pdfFile) NumPages() int {
	return p.reader.NumPage()
}

func (p *pdfFile) PageText(page int) (string, error) {
	pg := p.reader.Page(page)
	if pg.V.IsNull() {
		return "", nil
	}
	return pg.GetPlainText(nil)
}

// PageImages returns the page's images ordered by object number. Page
// thumbnails are skipped. An image pdfcpu cannot render keeps its slot with
// Err wrapping ocr.ErrUnsupportedColorSpace.
func (p *pdfFile) PageImages(page int) (images []EmbeddedImage, err error) {
	if page > p.ctx.PageCount {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			images = nil
			err = fmt.Errorf("image extraction panic on page %d: %v", page, r)
		}
	}()

	// Stubs carry the dictionary metadata the rendered images leave empty
	stubs, stubErr := pdfcpu.ExtractPageImages(p.ctx, page, true)
	if stubErr != nil {
		stubs = nil
	}

	found, err := pdfcpu.ExtractPageImages(p.ctx, page, false)
	if err != nil {
		return nil, err
	}

	objNrs := make([]int, 0, len(found))
	for objNr, img := range found {
		if img.Thumb {
			continue
		}
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	for _, objNr := range objNrs {
		img := found[objNr]
		stub := stubs[objNr]

		embedded := EmbeddedImage{
			Name:         img.Name,
			ObjectNumber: objNr,
			FileType:     img.FileType,
			Info: map[string]interface{}{
				"object_number":      objNr,
				"resource_name":      img.Name,
				"color_space":        stub.Cs,
				"bits_per_component": stub.Bpc,
				"filter":             stub.Filter,
			},
		}

		if img.Reader == nil {
			embedded.Err = fmt.Errorf("%w: %q in image object %d", ocr.ErrUnsupportedColorSpace, stub.Cs, objNr)
			images = append(images, embedded)
			continue
		}

		data, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("failed to read image object %d: %w", objNr, err)
		}
		embedded.Data = data
		images = append(images, embedded)
	}

	return images, nil
}

func (p *pdfFile) Close() error {
	return p.file.Close()
}
