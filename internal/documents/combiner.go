package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"

	"snd-backend/internal/storage"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	rscpdf "rsc.io/pdf"
)

// A4 in points, and the box images are fitted into.
const (
	pageWidth   = 595.0
	pageHeight  = 842.0
	imageMaxW   = 500
	imageMaxH   = 700
	jpegQuality = 90
)

var disableConfigDir sync.Once

func pdfcpuConf() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// Source is one document to combine, already resolved to its owner.
type Source struct {
	Name      string
	MimeType  string
	ObjectKey string
	OwnerType string
	Owner     string
}

type kind int

const (
	kindPDF kind = iota
	kindImage
	kindOther
)

func classify(mime string) kind {
	m := strings.ToLower(mime)
	switch {
	case strings.Contains(m, "pdf"):
		return kindPDF
	case strings.HasPrefix(m, "image/"):
		return kindImage
	default:
		return kindOther
	}
}

// part is a self-contained PDF contributing Pages pages to the output.
type part struct {
	data  []byte
	pages int
}

// Combiner concatenates stored documents into one PDF. PDFs are embedded
// as-is, images get a page each and anything else gets an information page.
// A document that cannot be processed is replaced by an error page so one bad
// upload never fails the whole bundle.
type Combiner struct {
	Store storage.ObjectStore
}

type Result struct {
	PDF   []byte
	Pages int
}

func (cb *Combiner) Combine(ctx context.Context, sources []Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, errors.New("no documents to combine")
	}

	parts := make([]part, 0, len(sources))
	total := 0
	for _, src := range sources {
		p, err := cb.render(ctx, src)
		if err != nil {
			zap.L().Warn("document combine: replacing with error page",
				zap.String("document", src.Name), zap.String("mime_type", src.MimeType), zap.Error(err))
			p, err = errorPage(src, err)
			if err != nil {
				return nil, fmt.Errorf("render error page for %s: %w", src.Name, err)
			}
		}
		parts = append(parts, p)
		total += p.pages
	}

	if len(parts) == 1 {
		return &Result{PDF: parts[0].data, Pages: total}, nil
	}

	readers := make([]io.ReadSeeker, len(parts))
	for i, p := range parts {
		readers[i] = bytes.NewReader(p.data)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, pdfcpuConf()); err != nil {
		return nil, fmt.Errorf("merge documents: %w", err)
	}
	return &Result{PDF: out.Bytes(), Pages: total}, nil
}

func (cb *Combiner) render(ctx context.Context, src Source) (part, error) {
	k := classify(src.MimeType)
	if k == kindOther {
		return infoPage(src)
	}

	data, err := storage.ReadAll(ctx, cb.Store, src.ObjectKey)
	if err != nil {
		return part{}, fmt.Errorf("fetch file: %w", err)
	}
	if k == kindPDF {
		return pdfPart(data)
	}
	p, err := imagePage(data)
	if err != nil {
		return imageErrorPage(src, err)
	}
	return p, nil
}

// pdfPart validates an uploaded PDF and counts its pages.
func pdfPart(data []byte) (part, error) {
	conf := pdfcpuConf()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return part{}, fmt.Errorf("invalid pdf: %w", err)
	}
	n, err := countPages(data)
	if err != nil {
		return part{}, err
	}
	if n == 0 {
		return part{}, errors.New("pdf has no pages")
	}
	return part{data: data, pages: n}, nil
}

// countPages reads the page tree with rsc.io/pdf, which panics on some
// malformed input, and falls back to pdfcpu.
func countPages(data []byte) (n int, err error) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("read pdf: %v", r)
			}
		}()
		var rd *rscpdf.Reader
		rd, err = rscpdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err == nil {
			n = rd.NumPage()
		}
	}()
	if err == nil && n > 0 {
		return n, nil
	}
	return api.PageCount(bytes.NewReader(data), pdfcpuConf())
}

// fitInside scales w×h down to fit maxW×maxH, never enlarging.
func fitInside(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	r := rw
	if rh < r {
		r = rh
	}
	nw, nh := int(float64(w)*r), int(float64(h)*r)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func imagePage(data []byte) (part, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return part{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := fitInside(b.Dx(), b.Dy(), imageMaxW, imageMaxH)
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	imgType := "PNG"
	if format == "jpeg" {
		imgType = "JPG"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return part{}, fmt.Errorf("encode image: %w", err)
	}

	pdf := newPage()
	opts := fpdf.ImageOptions{ImageType: imgType}
	pdf.RegisterImageOptionsReader("image", opts, &buf)
	x := (pageWidth - float64(w)) / 2
	y := (pageHeight - float64(h)) / 2
	pdf.ImageOptions("image", x, y, float64(w), float64(h), false, opts, 0, "")
	return output(pdf)
}

func newPage() *fpdf.Fpdf {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	return pdf
}

func output(pdf *fpdf.Fpdf) (part, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return part{}, err
	}
	return part{data: buf.Bytes(), pages: 1}, nil
}

// textPage writes a bold title and detail lines. y values are measured from
// the bottom of the page.
func textPage(title string, titleY float64, lines []string, lineSize float64) (part, error) {
	pdf := newPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(50, pageHeight-titleY, tr(title))

	pdf.SetFont("Helvetica", "", lineSize)
	y := 700.0
	for _, l := range lines {
		pdf.Text(50, pageHeight-y, tr(l))
		y -= 20
	}
	return output(pdf)
}

func ownerLine(src Source) string {
	owner := src.Owner
	if owner == "" {
		owner = "Unknown"
	}
	return "Owner: " + owner
}

func infoPage(src Source) (part, error) {
	return textPage("Document Information: "+src.Name, 750, []string{
		"Document Type: " + strings.ToUpper(src.OwnerType),
		"File Type: " + src.MimeType,
		ownerLine(src),
		"File Path: " + src.ObjectKey,
		fmt.Sprintf("Note: This document type (%s) cannot be directly embedded in PDF.", src.MimeType),
		"Please refer to the original file for viewing.",
	}, 10)
}

func errorPage(src Source, cause error) (part, error) {
	return textPage("Error Processing: "+src.Name, 750, []string{
		"Document Type: " + strings.ToUpper(src.OwnerType),
		"MIME Type: " + src.MimeType,
		ownerLine(src),
		"File Path: " + src.ObjectKey,
		"Error: " + cause.Error(),
		"Note: This document could not be processed.",
		"Please check the file format and try uploading it again.",
	}, 10)
}

func imageErrorPage(src Source, cause error) (part, error) {
	return textPage("Error Processing Image: "+src.Name, 750, []string{
		"Error: " + cause.Error(),
	}, 12)
}
