// Package documents stores employee and equipment files in object storage and
// bundles them into a single PDF on request.
package documents

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"snd-backend/internal/audit"
	"snd-backend/internal/auth"
	"snd-backend/internal/config"
	"snd-backend/internal/database"
	"snd-backend/internal/dateutil"
	"snd-backend/internal/models"
	"snd-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const downloadURLExpiry = 15 * time.Minute

var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

type DocumentResponse struct {
	ID           uint                 `json:"id"`
	CompanyID    uint                 `json:"company_id"`
	OwnerType    models.DocumentOwner `json:"owner_type"`
	OwnerID      uint                 `json:"owner_id"`
	DocumentType string               `json:"document_type"`
	Name         string               `json:"name"`
	MimeType     string               `json:"mime_type"`
	Size         int64                `json:"size"`
	Description  string               `json:"description"`
	UploadedByID *uint                `json:"uploaded_by_id"`
	CreatedAt    string               `json:"created_at"`
}

func toResponse(d *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		OwnerType:    d.OwnerType,
		OwnerID:      d.OwnerID,
		DocumentType: d.DocumentType,
		Name:         d.Name,
		MimeType:     d.MimeType,
		Size:         d.Size,
		Description:  d.Description,
		UploadedByID: d.UploadedByID,
		CreatedAt:    dateutil.FormatDateTime(d.CreatedAt),
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, ok := auth.ParseID(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return id, nil
}

// ownerCompany checks the owner is visible to the caller and returns its company.
func ownerCompany(c *fiber.Ctx, db *gorm.DB, ownerType models.DocumentOwner, ownerID uint) (uint, error) {
	if ownerType == models.DocumentOwnerEmployee {
		emp, err := auth.LoadEmployee(c, db, ownerID)
		if err != nil {
			return 0, err
		}
		return emp.CompanyID, nil
	}
	scope, err := auth.CompanyScope(c)
	if err != nil {
		return 0, err
	}
	var eq models.Equipment
	if err := db.Scopes(scope).First(&eq, ownerID).Error; err != nil {
		return 0, fiber.NewError(fiber.StatusNotFound, "Equipment not found")
	}
	return eq.CompanyID, nil
}

// visible scopes documents to the caller's company. Self-service roles see
// equipment documents and only their own employee documents.
func visible(c *fiber.Ctx) (func(*gorm.DB) *gorm.DB, error) {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return nil, err
	}
	company, err := auth.CompanyScope(c)
	if err != nil {
		return nil, err
	}
	if !id.SelfService() {
		return company, nil
	}
	return func(db *gorm.DB) *gorm.DB {
		own := company(db.Session(&gorm.Session{NewDB: true}).Model(&models.Employee{}).Select("id")).
			Where("user_id = ?", id.UserID)
		return company(db).Where("(owner_type <> ? OR owner_id IN (?))", models.DocumentOwnerEmployee, own)
	}, nil
}

func load(c *fiber.Ctx, id uint) (*models.Document, error) {
	scope, err := visible(c)
	if err != nil {
		return nil, err
	}
	var d models.Document
	if err := database.DB.Scopes(scope).First(&d, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Document not found")
	}
	return &d, nil
}

// POST /api/documents (multipart: owner_type, owner_id, document_type, description, file)
func UploadDocumentHandler(cfg *config.Config, store storage.ObjectStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerType := models.DocumentOwner(strings.TrimSpace(c.FormValue("owner_type")))
		if !ownerType.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "owner_type must be employee or equipment")
		}
		ownerID, ok := auth.ParseID(c.FormValue("owner_id"))
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid owner_id")
		}
		docType := strings.TrimSpace(c.FormValue("document_type"))
		if docType == "" {
			return fiber.NewError(fiber.StatusBadRequest, "document_type is required")
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		mimeType, ok := allowedTypes[ext]
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Unsupported file type, allowed: pdf, jpg, jpeg, png, webp, doc, docx")
		}
		if fh.Size == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "File is empty")
		}
		if cfg.MaxUploadBytes > 0 && fh.Size > cfg.MaxUploadBytes {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("File exceeds the maximum size of %d MB", cfg.MaxUploadBytes>>20))
		}

		companyID, err := ownerCompany(c, database.DB, ownerType, ownerID)
		if err != nil {
			return err
		}
		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Could not read file")
		}
		defer f.Close()

		key := fmt.Sprintf("%s/%d/%s%s", ownerType, ownerID, uuid.NewString(), ext)
		if err := store.Put(c.UserContext(), key, f, fh.Size, mimeType); err != nil {
			zap.L().Error("document upload failed", zap.String("key", key), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "Could not store file")
		}

		uploader := rec.UserID
		doc := models.Document{
			CompanyID:    companyID,
			OwnerType:    ownerType,
			OwnerID:      ownerID,
			DocumentType: docType,
			Name:         filepath.Base(fh.Filename),
			ObjectKey:    key,
			MimeType:     mimeType,
			Size:         fh.Size,
			Description:  strings.TrimSpace(c.FormValue("description")),
			UploadedByID: &uploader,
		}
		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&doc).Error; err != nil {
				return err
			}
			return rec.Log(tx, companyID, "document", doc.ID, models.AuditActionCreate,
				fmt.Sprintf("Uploaded %s %s for %s %d", docType, doc.Name, ownerType, ownerID), nil, doc)
		})
		if err != nil {
			if delErr := store.Delete(c.UserContext(), key); delErr != nil {
				zap.L().Warn("orphaned document object", zap.String("key", key), zap.Error(delErr))
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not save document")
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&doc))
	}
}

// GET /api/documents?owner_type=&owner_id=&document_type=
func ListDocumentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := visible(c)
		if err != nil {
			return err
		}
		q := database.DB.Scopes(scope)
		if s := c.Query("owner_type"); s != "" {
			ot := models.DocumentOwner(s)
			if !ot.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "owner_type must be employee or equipment")
			}
			q = q.Where("owner_type = ?", ot)
		}
		if s := c.Query("owner_id"); s != "" {
			ownerID, ok := auth.ParseID(s)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid owner_id")
			}
			q = q.Where("owner_id = ?", ownerID)
		}
		if s := c.Query("document_type"); s != "" {
			q = q.Where("document_type = ?", s)
		}

		var rows []models.Document
		if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list documents")
		}
		out := make([]DocumentResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toResponse(&rows[i]))
		}
		return c.JSON(out)
	}
}

// GET /api/documents/:id/download
func DownloadDocumentHandler(store storage.ObjectStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		doc, err := load(c, id)
		if err != nil {
			return err
		}
		url, err := store.PresignGet(c.UserContext(), doc.ObjectKey, downloadURLExpiry)
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Document file not found")
		}
		if err != nil {
			zap.L().Error("presign document", zap.Uint("document_id", doc.ID), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "Could not create download link")
		}
		return c.JSON(fiber.Map{
			"url":        url,
			"name":       doc.Name,
			"mime_type":  doc.MimeType,
			"expires_at": dateutil.FormatDateTime(time.Now().Add(downloadURLExpiry)),
		})
	}
}

// DELETE /api/documents/:id
func DeleteDocumentHandler(store storage.ObjectStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		doc, err := load(c, id)
		if err != nil {
			return err
		}
		rec, err := audit.RecorderFor(c)
		if err != nil {
			return err
		}

		err = database.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&models.Document{}, doc.ID).Error; err != nil {
				return err
			}
			return rec.Log(tx, doc.CompanyID, "document", doc.ID, models.AuditActionDelete,
				fmt.Sprintf("Deleted %s %s", doc.DocumentType, doc.Name), doc, nil)
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete document")
		}
		if err := store.Delete(c.UserContext(), doc.ObjectKey); err != nil {
			zap.L().Warn("delete document object", zap.String("key", doc.ObjectKey), zap.Error(err))
		}
		return c.JSON(fiber.Map{"message": "Document deleted"})
	}
}

type CombineRequest struct {
	IDs []uint `json:"ids"`
}

// POST /api/documents/combine
func CombineDocumentsHandler(store storage.ObjectStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CombineRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(body.IDs) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "ids is required")
		}
		scope, err := visible(c)
		if err != nil {
			return err
		}

		var rows []models.Document
		if err := database.DB.Scopes(scope).Where("id IN ?", body.IDs).Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load documents")
		}
		if len(rows) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "No documents found")
		}
		sources, err := resolveSources(database.DB, body.IDs, rows)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load document owners")
		}

		cb := &Combiner{Store: store}
		res, err := cb.Combine(c.UserContext(), sources)
		if err != nil {
			zap.L().Error("combine documents", zap.Int("count", len(sources)), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "Could not combine documents")
		}

		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="combined-documents-%s.pdf"`, dateutil.Format(dateutil.Today())))
		c.Set("X-Page-Count", fmt.Sprint(res.Pages))
		return c.Send(res.PDF)
	}
}

// resolveSources orders rows as requested and labels each with its owner.
func resolveSources(db *gorm.DB, order []uint, rows []models.Document) ([]Source, error) {
	var empIDs, eqIDs []uint
	byID := make(map[uint]*models.Document, len(rows))
	for i := range rows {
		d := &rows[i]
		byID[d.ID] = d
		if d.OwnerType == models.DocumentOwnerEmployee {
			empIDs = append(empIDs, d.OwnerID)
		} else {
			eqIDs = append(eqIDs, d.OwnerID)
		}
	}

	owners := map[string]string{}
	if len(empIDs) > 0 {
		var emps []models.Employee
		if err := db.Where("id IN ?", empIDs).Find(&emps).Error; err != nil {
			return nil, err
		}
		for _, e := range emps {
			fileNo := e.FileNumber
			if fileNo == "" {
				fileNo = "No File #"
			}
			owners[fmt.Sprintf("employee/%d", e.ID)] = fmt.Sprintf("%s (%s)", strings.TrimSpace(e.FirstName+" "+e.LastName), fileNo)
		}
	}
	if len(eqIDs) > 0 {
		var eqs []models.Equipment
		if err := db.Where("id IN ?", eqIDs).Find(&eqs).Error; err != nil {
			return nil, err
		}
		for _, e := range eqs {
			label := e.Name
			if e.Model != "" {
				label += " (" + e.Model + ")"
			}
			owners[fmt.Sprintf("equipment/%d", e.ID)] = label
		}
	}

	out := make([]Source, 0, len(rows))
	seen := make(map[uint]bool, len(order))
	for _, id := range order {
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Source{
			Name:      d.Name,
			MimeType:  d.MimeType,
			ObjectKey: d.ObjectKey,
			OwnerType: string(d.OwnerType),
			Owner:     owners[fmt.Sprintf("%s/%d", d.OwnerType, d.OwnerID)],
		})
	}
	return out, nil
}
