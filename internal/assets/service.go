package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"brandkit-backend/internal/shared/storage/object"
	"brandkit-backend/internal/shared/telemetry"
	"brandkit-backend/internal/shared/util"
)

const sniffBytes = 3072

// PrewarmEnqueuer schedules background format generation for a new original.
type PrewarmEnqueuer interface {
	EnqueuePrewarm(ctx context.Context, assetID string, formats []string, requestID string) error
}

// Service contains business logic for brand assets.
type Service struct {
	Repo           *Repo
	Blobs          object.ObjectStore
	Prewarm        PrewarmEnqueuer
	PrewarmFormats []string
	Now            func() time.Time
	NewID          func() string
}

// UploadInput describes a new original.
type UploadInput struct {
	Name       string
	Category   string
	FileName   string
	UploadedBy string
	Size       int64
	Body       io.Reader
	Progress   chan<- object.Progress
	RequestID  string
}

// EditInput carries the metadata fields an admin may change. Nil fields are left alone.
type EditInput struct {
	Name     *string
	Category *string
}

// ReplaceInput describes a replacement original for an existing asset.
type ReplaceInput struct {
	FileName   string
	UploadedBy string
	Size       int64
	Body       io.Reader
	Progress   chan<- object.Progress
	RequestID  string
}

type storedFile struct {
	name        string
	key         string
	url         string
	contentType string
}

// Upload stores the original under assets/{category}/{millis}_{name} and
// records the asset with no cached formats.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Asset, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Body == nil {
		return Asset{}, fmt.Errorf("%w: name and file are required", ErrInvalidInput)
	}
	category := NormalizeCategory(in.Category)
	if !ValidCategory(category) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidCategory, in.Category)
	}

	now := s.now()
	file, err := s.store(ctx, category, in.FileName, in.Size, in.Body, in.Progress, now)
	if err != nil {
		return Asset{}, err
	}

	a := Asset{
		ID:               s.newID(),
		Name:             name,
		Category:         category,
		FileName:         file.name,
		FileURL:          file.url,
		FileType:         file.contentType,
		StoragePath:      file.key,
		UploadedBy:       in.UploadedBy,
		UploadedAt:       now,
		AvailableFormats: map[string]FormatEntry{},
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return Asset{}, fmt.Errorf("create asset: %w", err)
	}

	telemetry.Info("assets.uploaded", map[string]any{
		"asset_id":   a.ID,
		"category":   a.Category,
		"file_type":  a.FileType,
		"request_id": in.RequestID,
	})
	s.enqueuePrewarm(ctx, a, in.RequestID)
	return a, nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, id string) (Asset, error) {
	if strings.TrimSpace(id) == "" {
		return Asset{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns assets newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Asset, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	return s.Repo.List(ctx, limit, offset)
}

// Edit updates the asset's name and category.
func (s *Service) Edit(ctx context.Context, id string, in EditInput) (Asset, error) {
	if strings.TrimSpace(id) == "" {
		return Asset{}, ErrInvalidInput
	}
	fields := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Asset{}, fmt.Errorf("%w: name cannot be blank", ErrInvalidInput)
		}
		fields["name"] = name
	}
	if in.Category != nil {
		category := NormalizeCategory(*in.Category)
		if !ValidCategory(category) {
			return Asset{}, fmt.Errorf("%w: %q", ErrInvalidCategory, *in.Category)
		}
		fields["category"] = category
	}
	if len(fields) == 0 {
		return Asset{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if err := s.Repo.Update(ctx, id, fields); err != nil {
		return Asset{}, err
	}
	return s.Repo.GetByID(ctx, id)
}

// Replace stores a new original for an existing asset. Cached format entries
// are kept as they are.
func (s *Service) Replace(ctx context.Context, id string, in ReplaceInput) (Asset, error) {
	if strings.TrimSpace(id) == "" || in.Body == nil {
		return Asset{}, fmt.Errorf("%w: id and file are required", ErrInvalidInput)
	}
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}

	category := current.Category
	if category == "" {
		category = CategoryTemplate
	}
	now := s.now()
	file, err := s.store(ctx, category, in.FileName, in.Size, in.Body, in.Progress, now)
	if err != nil {
		return Asset{}, err
	}

	fields := map[string]any{
		"fileName":    file.name,
		"fileUrl":     file.url,
		"fileType":    file.contentType,
		"storagePath": file.key,
		"uploadedAt":  now,
	}
	if in.UploadedBy != "" {
		fields["uploadedBy"] = in.UploadedBy
	}
	if err := s.Repo.Update(ctx, id, fields); err != nil {
		return Asset{}, err
	}

	telemetry.Info("assets.replaced", map[string]any{
		"asset_id":      id,
		"file_type":     file.contentType,
		"cached_format": len(current.AvailableFormats),
		"request_id":    in.RequestID,
	})
	return s.Repo.GetByID(ctx, id)
}

func (s *Service) store(ctx context.Context, category, fileName string, size int64, body io.Reader, progress chan<- object.Progress, now time.Time) (storedFile, error) {
	if s.Blobs == nil {
		return storedFile{}, errors.New("blob store not configured")
	}
	name := util.SanitizeFileName(fileName)

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return storedFile{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return storedFile{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	head = head[:n]
	contentType, err := detectContentType(head)
	if err != nil {
		return storedFile{}, err
	}

	key := fmt.Sprintf("assets/%s/%d_%s", category, now.UnixMilli(), name)
	r := object.NewProgressReader(io.MultiReader(bytes.NewReader(head), body), size, progress)
	ref, err := s.Blobs.Put(ctx, key, contentType, r)
	if err != nil {
		return storedFile{}, fmt.Errorf("store original: %w", err)
	}
	url, err := s.Blobs.PublicURL(ctx, ref)
	if err != nil {
		return storedFile{}, fmt.Errorf("public url: %w", err)
	}
	return storedFile{name: name, key: ref.Key, url: url, contentType: contentType}, nil
}

var allowedPrefixes = []string{"image/", "font/", "application/pdf", "application/zip", "application/vnd.ms-fontobject"}

// detectContentType sniffs the upload head. Only images, fonts, PDFs and
// archives are accepted as brand assets.
func detectContentType(head []byte) (string, error) {
	mt := mimetype.Detect(head)
	contentType, _, _ := strings.Cut(mt.String(), ";")
	contentType = strings.TrimSpace(contentType)
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return contentType, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, contentType)
}

func (s *Service) enqueuePrewarm(ctx context.Context, a Asset, requestID string) {
	if s.Prewarm == nil || len(s.PrewarmFormats) == 0 {
		return
	}
	if !strings.HasPrefix(a.FileType, "image/") || strings.Contains(a.FileType, "svg") {
		return
	}
	if err := s.Prewarm.EnqueuePrewarm(ctx, a.ID, s.PrewarmFormats, requestID); err != nil {
		telemetry.Warn("assets.prewarm_enqueue_failed", map[string]any{
			"asset_id":   a.ID,
			"request_id": requestID,
			"error":      err,
		})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
