package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"desci-meme/market"
	"desci-meme/models"
	"desci-meme/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Artefakt-Arten, die hochgeladen werden dürfen.
const (
	ContentPDF   = "pdf"
	ContentImage = "image"
)

var pdfMagic = []byte("%PDF-")

// ContentService lädt PDFs und Bilder nach S3 und liefert den Content-Hash,
// der bei der Token-Erstellung als pdf_hash bzw. image_hash angegeben wird.
type ContentService struct {
	DB       *gorm.DB
	Bucket   *storage.Bucket
	Logger   *zap.Logger
	MaxBytes int64
}

func NewContentService(db *gorm.DB, bucket *storage.Bucket, logger *zap.Logger, maxBytes int64) *ContentService {
	return &ContentService{DB: db, Bucket: bucket, Logger: logger, MaxBytes: maxBytes}
}

// ContentHash berechnet den Content-Hash eines Artefakts.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:])
}

// Upload prüft und speichert ein Artefakt. Ist der Hash bereits bekannt, wird nichts erneut hochgeladen.
func (c *ContentService) Upload(ctx context.Context, kind string, data []byte, contentType string) (*models.ContentObject, error) {
	if err := c.validate(kind, data, contentType); err != nil {
		return nil, err
	}
	hash := ContentHash(data)
	log := c.Logger.With(zap.String("hash", hash), zap.String("kind", kind))

	var existing models.ContentObject
	err := c.DB.WithContext(ctx).Where("hash = ?", hash).First(&existing).Error
	if err == nil {
		log.Debug("Content bereits vorhanden, Upload übersprungen.")
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup content %s: %w", hash, err)
	}

	key := fmt.Sprintf("content/%s/%s", kind, hash)
	log.Info("Lade Content nach S3 hoch", zap.String("key", key), zap.Int("size", len(data)))
	link, err := c.Bucket.Put(ctx, key, data, contentType)
	if err != nil {
		log.Error("S3-Upload fehlgeschlagen", zap.Error(err))
		return nil, err
	}

	obj := models.ContentObject{
		Hash:        hash,
		Kind:        kind,
		ContentType: contentType,
		Size:        int64(len(data)),
		S3Key:       key,
		S3Link:      link,
	}
	if err := c.DB.WithContext(ctx).Create(&obj).Error; err != nil {
		return nil, fmt.Errorf("save content %s: %w", hash, err)
	}
	return &obj, nil
}

// Lookup liefert die Metadaten zu einem Hash.
func (c *ContentService) Lookup(ctx context.Context, hash string) (*models.ContentObject, error) {
	var obj models.ContentObject
	err := c.DB.WithContext(ctx).Where("hash = ?", hash).First(&obj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &market.Error{Kind: market.ErrNotFound, Msg: "content not found"}
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (c *ContentService) validate(kind string, data []byte, contentType string) error {
	invalid := func(msg string) error {
		return &market.Error{Kind: market.ErrValidation, Msg: msg}
	}
	if len(data) == 0 {
		return invalid("content is empty")
	}
	if c.MaxBytes > 0 && int64(len(data)) > c.MaxBytes {
		return invalid(fmt.Sprintf("content exceeds %d bytes", c.MaxBytes))
	}
	switch kind {
	case ContentPDF:
		if !bytes.HasPrefix(data, pdfMagic) {
			return invalid("content is not a PDF document")
		}
	case ContentImage:
		if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
			return invalid("content type must be image/*")
		}
	default:
		return invalid(fmt.Sprintf("unknown content kind %q", kind))
	}
	return nil
}
