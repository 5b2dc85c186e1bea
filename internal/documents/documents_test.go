package documents

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snd-backend/internal/auth"
	"snd-backend/internal/config"
	"snd-backend/internal/models"
	"snd-backend/internal/storage"
	"snd-backend/internal/testutil"

	"github.com/go-pdf/fpdf"
	"github.com/gofiber/fiber/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(20, 20, fmt.Sprintf("Page %d", i))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), pdfcpuConf())
	require.NoError(t, err)
	return n
}

func put(t *testing.T, store storage.ObjectStore, key string, data []byte) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), ""))
}

func TestFitInside(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{100, 100, 100, 100},
		{1000, 1000, 500, 500},
		{1000, 2800, 250, 700},
		{2000, 700, 500, 175},
		{500, 700, 500, 700},
	}
	for _, tt := range tests {
		w, h := fitInside(tt.w, tt.h, imageMaxW, imageMaxH)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestCountPages(t *testing.T) {
	n, err := countPages(samplePDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = countPages([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestCombinePageCount(t *testing.T) {
	store := storage.NewMemory("test")
	put(t, store, "employee/1/a.pdf", samplePDF(t, 2))
	put(t, store, "employee/1/b.png", samplePNG(t, 1200, 900))
	put(t, store, "employee/1/c.pdf", []byte("%PDF-1.4 broken"))
	put(t, store, "equipment/2/d.png", []byte("not an image"))

	cb := &Combiner{Store: store}
	res, err := cb.Combine(context.Background(), []Source{
		{Name: "contract.pdf", MimeType: "application/pdf", ObjectKey: "employee/1/a.pdf", OwnerType: "employee", Owner: "Ali Test (E-1)"},
		{Name: "iqama.png", MimeType: "image/png", ObjectKey: "employee/1/b.png", OwnerType: "employee"},
		{Name: "cv.docx", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ObjectKey: "employee/1/cv.docx", OwnerType: "employee"},
		{Name: "broken.pdf", MimeType: "application/pdf", ObjectKey: "employee/1/c.pdf", OwnerType: "employee"},
		{Name: "missing.pdf", MimeType: "application/pdf", ObjectKey: "employee/1/nope.pdf", OwnerType: "employee"},
		{Name: "photo.png", MimeType: "image/png", ObjectKey: "equipment/2/d.png", OwnerType: "equipment", Owner: "Crane (50T)"},
	})
	require.NoError(t, err)

	// 2 pdf pages + image + info page + two error pages + image error page
	assert.Equal(t, 7, res.Pages)
	assert.Equal(t, 7, pageCount(t, res.PDF))
}

func TestCombineSingleDocument(t *testing.T) {
	store := storage.NewMemory("test")
	put(t, store, "k.png", samplePNG(t, 40, 30))

	res, err := (&Combiner{Store: store}).Combine(context.Background(), []Source{
		{Name: "small.png", MimeType: "image/png", ObjectKey: "k.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 1, pageCount(t, res.PDF))

	_, err = (&Combiner{Store: store}).Combine(context.Background(), nil)
	assert.Error(t, err)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func upload(t *testing.T, app *fiber.App, token string, fields map[string]string, filename string, content []byte) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func setupApp(cfg *config.Config, store storage.ObjectStore) *fiber.App {
	app := testutil.NewApp()
	api := testutil.Protected(app, cfg)
	docs := api.Group("/documents", auth.RequirePermission("read", "Document"))
	docs.Get("/", ListDocumentsHandler())
	docs.Post("/", auth.RequirePermission("create", "Document"), UploadDocumentHandler(cfg, store))
	docs.Post("/combine", CombineDocumentsHandler(store))
	docs.Get("/:id/download", DownloadDocumentHandler(store))
	docs.Delete("/:id", auth.RequirePermission("delete", "Document"), DeleteDocumentHandler(store))
	return app
}

func TestDocumentHandlers(t *testing.T) {
	db := testutil.SetupDB(t)
	cfg := testutil.Config()
	cfg.MaxUploadBytes = 1 << 20
	store := storage.NewMemory("docs")
	app := setupApp(cfg, store)

	company := testutil.CreateCompany(t, db, "SND")
	other := testutil.CreateCompany(t, db, "Other")
	admin := testutil.CreateUser(t, db, &company.ID, models.RoleAdmin, "admin@snd.test")
	token := testutil.Token(t, cfg, admin)

	emp := testutil.CreateEmployee(t, db, company.ID, "E-1", "Ali")
	foreign := testutil.CreateEmployee(t, db, other.ID, "E-1", "Omar")
	eq := models.Equipment{CompanyID: company.ID, Name: "Crane", Model: "50T", Status: models.EquipmentStatusAvailable}
	require.NoError(t, db.Create(&eq).Error)

	fields := func(ownerType string, ownerID uint) map[string]string {
		return map[string]string{"owner_type": ownerType, "owner_id": fmt.Sprint(ownerID), "document_type": "iqama"}
	}

	t.Run("validation", func(t *testing.T) {
		resp := upload(t, app, token, fields("employee", emp.ID), "virus.exe", []byte("MZ"))
		testutil.RequireStatus(t, resp, http.StatusBadRequest)

		resp = upload(t, app, token, fields("vehicle", emp.ID), "a.pdf", samplePDF(t, 1))
		testutil.RequireStatus(t, resp, http.StatusBadRequest)

		resp = upload(t, app, token, fields("employee", emp.ID), "big.pdf", bytes.Repeat([]byte("x"), 2<<20))
		testutil.RequireStatus(t, resp, http.StatusBadRequest)

		resp = upload(t, app, token, fields("employee", foreign.ID), "a.pdf", samplePDF(t, 1))
		testutil.RequireStatus(t, resp, http.StatusNotFound)
		assert.Zero(t, store.Len())
	})

	var pdfDoc, imgDoc, eqDoc DocumentResponse
	t.Run("upload", func(t *testing.T) {
		resp := upload(t, app, token, fields("employee", emp.ID), "Contract.PDF", samplePDF(t, 2))
		testutil.RequireStatus(t, resp, http.StatusCreated)
		testutil.Decode(t, resp, &pdfDoc)
		assert.Equal(t, "application/pdf", pdfDoc.MimeType)
		assert.Equal(t, company.ID, pdfDoc.CompanyID)

		resp = upload(t, app, token, fields("employee", emp.ID), "iqama.png", samplePNG(t, 60, 40))
		testutil.RequireStatus(t, resp, http.StatusCreated)
		testutil.Decode(t, resp, &imgDoc)

		resp = upload(t, app, token, fields("equipment", eq.ID), "registration.docx", []byte("PK fake docx"))
		testutil.RequireStatus(t, resp, http.StatusCreated)
		testutil.Decode(t, resp, &eqDoc)

		assert.Equal(t, 3, store.Len())

		var stored models.Document
		require.NoError(t, db.First(&stored, pdfDoc.ID).Error)
		assert.True(t, strings.HasPrefix(stored.ObjectKey, fmt.Sprintf("employee/%d/", emp.ID)))
		assert.True(t, strings.HasSuffix(stored.ObjectKey, ".pdf"))
	})

	t.Run("list", func(t *testing.T) {
		var list []DocumentResponse
		resp := testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/documents?owner_type=employee&owner_id=%d", emp.ID), token, nil)
		testutil.RequireStatus(t, resp, http.StatusOK)
		testutil.Decode(t, resp, &list)
		assert.Len(t, list, 2)

		resp = testutil.Do(t, app, http.MethodGet, "/api/documents", token, nil)
		testutil.Decode(t, resp, &list)
		assert.Len(t, list, 3)
	})

	t.Run("download", func(t *testing.T) {
		var out map[string]any
		resp := testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/documents/%d/download", pdfDoc.ID), token, nil)
		testutil.RequireStatus(t, resp, http.StatusOK)
		testutil.Decode(t, resp, &out)
		assert.True(t, strings.HasPrefix(out["url"].(string), "memory://docs/employee/"))

		for _, bad := range []string{fmt.Sprintf("%dabc", pdfDoc.ID), "0", "-1", "%20" + fmt.Sprint(pdfDoc.ID)} {
			resp = testutil.Do(t, app, http.MethodGet, "/api/documents/"+bad+"/download", token, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
		}
		resp = testutil.Do(t, app, http.MethodGet, "/api/documents?owner_id=1x", token, nil)
		testutil.RequireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("combine", func(t *testing.T) {
		resp := testutil.Do(t, app, http.MethodPost, "/api/documents/combine", token,
			fiber.Map{"ids": []uint{eqDoc.ID, pdfDoc.ID, imgDoc.ID, 9999}})
		testutil.RequireStatus(t, resp, http.StatusOK)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, "4", resp.Header.Get("X-Page-Count"))
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 4, pageCount(t, data))

		resp = testutil.Do(t, app, http.MethodPost, "/api/documents/combine", token, fiber.Map{"ids": []uint{}})
		testutil.RequireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		otherAdmin := testutil.CreateUser(t, db, &other.ID, models.RoleAdmin, "admin@other.test")
		otherToken := testutil.Token(t, cfg, otherAdmin)
		resp := testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/documents/%d/download", pdfDoc.ID), otherToken, nil)
		testutil.RequireStatus(t, resp, http.StatusNotFound)
		resp = testutil.Do(t, app, http.MethodPost, "/api/documents/combine", otherToken, fiber.Map{"ids": []uint{pdfDoc.ID}})
		testutil.RequireStatus(t, resp, http.StatusNotFound)
	})

	t.Run("operators only see their own employee documents", func(t *testing.T) {
		operator := testutil.CreateUser(t, db, &company.ID, models.RoleOperator, "operator@snd.test")
		opToken := testutil.Token(t, cfg, operator)

		var list []DocumentResponse
		resp := testutil.Do(t, app, http.MethodGet, "/api/documents", opToken, nil)
		testutil.RequireStatus(t, resp, http.StatusOK)
		testutil.Decode(t, resp, &list)
		require.Len(t, list, 1)
		assert.Equal(t, eqDoc.ID, list[0].ID)

		self := testutil.CreateEmployee(t, db, company.ID, "E-2", "Sami")
		require.NoError(t, db.Model(self).Update("user_id", operator.ID).Error)
		own := models.Document{
			CompanyID: company.ID, OwnerType: models.DocumentOwnerEmployee, OwnerID: self.ID,
			DocumentType: "iqama", Name: "own.pdf", ObjectKey: "employee/own.pdf", MimeType: "application/pdf", Size: 10,
		}
		require.NoError(t, db.Create(&own).Error)

		resp = testutil.Do(t, app, http.MethodGet, "/api/documents?owner_type=employee", opToken, nil)
		testutil.RequireStatus(t, resp, http.StatusOK)
		testutil.Decode(t, resp, &list)
		require.Len(t, list, 1)
		assert.Equal(t, own.ID, list[0].ID)

		resp = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/documents/%d/download", pdfDoc.ID), opToken, nil)
		testutil.RequireStatus(t, resp, http.StatusNotFound)
		resp = testutil.Do(t, app, http.MethodPost, "/api/documents/combine", opToken, fiber.Map{"ids": []uint{pdfDoc.ID, imgDoc.ID}})
		testutil.RequireStatus(t, resp, http.StatusNotFound)

		require.NoError(t, db.Delete(&own).Error)
	})

	t.Run("delete", func(t *testing.T) {
		resp := testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/api/documents/%d", imgDoc.ID), token, nil)
		testutil.RequireStatus(t, resp, http.StatusOK)
		assert.Equal(t, 2, store.Len())

		var n int64
		db.Model(&models.Document{}).Where("id = ?", imgDoc.ID).Count(&n)
		assert.Zero(t, n)

		var logs int64
		db.Model(&models.AuditLog{}).Where("entity_type = ?", "document").Count(&logs)
		assert.Equal(t, int64(4), logs)
	})
}
