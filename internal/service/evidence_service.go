package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/storage"
)

type evidenceStore interface {
	SaveStream(filename string, r io.Reader) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type urlSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (string, string, time.Time, error)
}

type incidentReader interface {
	Get(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) (*models.Incident, error)
}

// EvidenceConfig bounds evidence uploads.
type EvidenceConfig struct {
	MaxFiles          int
	MaxFileSize       int64
	AllowedExtensions []string
}

// EvidenceService stores incident attachments and hands out signed download
// links for them.
type EvidenceService struct {
	store     evidenceStore
	signer    urlSigner
	incidents incidentReader
	config    EvidenceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewEvidenceService constructs an EvidenceService. Attach the incident
// reader with UseIncidents before serving download links.
func NewEvidenceService(store evidenceStore, signer urlSigner, config EvidenceConfig, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = 5
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 5 * 1024 * 1024
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}
	}
	return &EvidenceService{store: store, signer: signer, config: config, logger: logger, now: time.Now}
}

// UseIncidents wires the access check used by SignURL.
func (s *EvidenceService) UseIncidents(incidents incidentReader) {
	s.incidents = incidents
}

// Store validates every file before writing any, then saves them under
// random names. A failed write removes the files already saved.
func (s *EvidenceService) Store(files []*multipart.FileHeader) ([]string, error) {
	if len(files) > s.config.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("A maximum of %d evidence files is allowed", s.config.MaxFiles))
	}
	exts := make([]string, len(files))
	for i, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !s.allowed(ext) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "Only jpg, jpeg, png, and pdf files are allowed")
		}
		if fh.Size > s.config.MaxFileSize {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File %s exceeds the %d MB limit", fh.Filename, s.config.MaxFileSize/(1024*1024)))
		}
		exts[i] = ext
	}

	saved := make([]string, 0, len(files))
	for i, fh := range files {
		name, err := s.save(fh, exts[i])
		if err != nil {
			s.Remove(saved)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func (s *EvidenceService) save(fh *multipart.FileHeader, ext string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("random name: %w", err)
	}
	name := fmt.Sprintf("%d_%s%s", s.now().UnixMilli(), hex.EncodeToString(suffix), ext)
	// the header size is client supplied; cap the copy as well
	written, err := s.store.SaveStream(name, io.LimitReader(src, s.config.MaxFileSize+1))
	if err != nil {
		return "", err
	}
	if written > s.config.MaxFileSize {
		_ = s.store.Delete(name)
		return "", fmt.Errorf("upload %s larger than declared", fh.Filename)
	}
	return name, nil
}

// Remove deletes stored files, logging failures.
func (s *EvidenceService) Remove(paths []string) {
	for _, p := range paths {
		if err := s.store.Delete(p); err != nil {
			s.logger.Warn("failed to remove evidence file", zap.String("path", p), zap.Error(err))
		}
	}
}

// SignURL returns a short-lived download token for the index-th attachment
// of an incident visible to actor.
func (s *EvidenceService) SignURL(ctx context.Context, incidentID string, index int, actor *models.User, meta models.RequestMeta) (string, time.Time, error) {
	incident, err := s.incidents.Get(ctx, incidentID, actor, meta)
	if err != nil {
		return "", time.Time{}, err
	}
	if index < 0 || index >= len(incident.EvidenceFiles) {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "Evidence not found")
	}
	token, expires, err := s.signer.Generate(incident.ID, incident.EvidenceFiles[index])
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence link")
	}
	return token, expires, nil
}

// Open resolves a download token to the stored file.
func (s *EvidenceService) Open(token string) (*os.File, string, error) {
	_, path, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "Evidence link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "Invalid evidence link")
	}
	file, err := s.store.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "Evidence not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open evidence")
	}
	return file, filepath.Base(path), nil
}

func (s *EvidenceService) allowed(ext string) bool {
	for _, a := range s.config.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
