package models

import "time"

type DocumentOwner string

const (
	DocumentOwnerEmployee  DocumentOwner = "employee"
	DocumentOwnerEquipment DocumentOwner = "equipment"
)

func (o DocumentOwner) Valid() bool {
	return o == DocumentOwnerEmployee || o == DocumentOwnerEquipment
}

type Document struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CompanyID uint          `gorm:"not null;index" json:"company_id"`
	OwnerType DocumentOwner `gorm:"size:20;not null;index:idx_document_owner" json:"owner_type"`
	OwnerID   uint          `gorm:"not null;index:idx_document_owner" json:"owner_id"`
	// e.g. iqama, passport, driving_license, registration
	DocumentType string `gorm:"size:50;not null" json:"document_type"`
	Name         string `gorm:"size:255;not null" json:"name"`
	ObjectKey    string `gorm:"size:255;not null;uniqueIndex" json:"object_key"`
	MimeType     string `gorm:"size:100" json:"mime_type"`
	Size         int64  `gorm:"not null" json:"size"`
	Description  string `gorm:"size:255" json:"description"`

	UploadedByID *uint     `json:"uploaded_by_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
