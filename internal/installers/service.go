// Package installers is the write path for installer binaries: it stores the
// blob, hashes the bytes that were actually stored and persists the row.
package installers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/blob"
	"github.com/xelth-com/wingetpro/internal/integrity"
	"github.com/xelth-com/wingetpro/internal/metrics"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/store"
)

// Upload is a new installer for an existing version.
type Upload struct {
	VersionID    uint
	Architecture models.Architecture
	Type         models.InstallerType
	Scope        models.Scope
	Filename     string
	Content      io.Reader

	// SHA256 is the digest claimed by the caller. It is never stored; a
	// mismatch with the computed digest is only logged.
	SHA256 string
}

// Change modifies an existing installer. Nil fields are left as they are.
// When Content is nil the stored blob is kept and re-hashed.
type Change struct {
	Architecture *models.Architecture
	Type         *models.InstallerType
	Scope        *models.Scope
	Filename     string
	Content      io.Reader
	SHA256       string
}

// Service coordinates the blob store and the entity store.
type Service struct {
	store   *store.Store
	blobs   blob.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(st *store.Store, blobs blob.Store, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, blobs: blobs, metrics: m, logger: logger}
}

// Create stores up.Content and inserts the installer row with the digest of
// the stored bytes.
func (s *Service) Create(ctx context.Context, tenantID string, up Upload) (*models.Installer, error) {
	inst := &models.Installer{
		VersionID:    up.VersionID,
		Architecture: up.Architecture,
		Type:         up.Type,
		Scope:        up.Scope,
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if up.Content == nil {
		return nil, apperr.Invalid("file", "is required")
	}
	if _, err := s.store.GetVersion(ctx, tenantID, up.VersionID); err != nil {
		return nil, err
	}
	// Reject duplicates before any bytes are written.
	_, err := s.store.FindInstaller(ctx, inst.VersionID, inst.Architecture, inst.Type)
	switch {
	case err == nil:
		return nil, apperr.Conflict("installer %s/%s already exists for this version", inst.Architecture, inst.Type)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	obj, err := s.blobs.Put(ctx, tenantID, up.Filename, up.Content)
	if err != nil {
		return nil, fmt.Errorf("store installer blob: %w", err)
	}
	if err := s.persist(ctx, inst, obj, up.SHA256); err != nil {
		s.discard(ctx, obj.Path)
		return nil, err
	}

	s.logger.Info("Installer created",
		zap.String("tenant", tenantID),
		zap.Uint("installer_id", inst.ID),
		zap.Uint("version_id", inst.VersionID),
		zap.String("architecture", string(inst.Architecture)),
		zap.String("type", string(inst.Type)),
		zap.String("sha256", inst.SHA256),
	)
	return inst, nil
}

// Update applies ch to the installer. The digest is recomputed on every
// update, from the new content when supplied and from the existing blob
// otherwise. A replaced blob is removed after the row is committed.
func (s *Service) Update(ctx context.Context, tenantID string, id uint, ch Change) (*models.Installer, error) {
	inst, err := s.store.GetInstaller(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ch.Architecture != nil {
		inst.Architecture = *ch.Architecture
	}
	if ch.Type != nil {
		inst.Type = *ch.Type
	}
	if ch.Scope != nil {
		inst.Scope = *ch.Scope
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}

	previous := inst.File
	obj := blob.Object{Path: inst.File, Size: inst.Size}
	replaced := ch.Content != nil
	if replaced {
		if obj, err = s.blobs.Put(ctx, tenantID, ch.Filename, ch.Content); err != nil {
			return nil, fmt.Errorf("store installer blob: %w", err)
		}
	}

	if err := s.persist(ctx, inst, obj, ch.SHA256); err != nil {
		if replaced {
			s.discard(ctx, obj.Path)
		}
		return nil, err
	}
	if replaced && previous != obj.Path {
		s.discard(ctx, previous)
	}

	s.logger.Info("Installer updated",
		zap.String("tenant", tenantID),
		zap.Uint("installer_id", inst.ID),
		zap.Bool("content_replaced", replaced),
		zap.String("sha256", inst.SHA256),
	)
	return inst, nil
}

// persist hashes the stored blob and writes file, size and digest in one
// row write.
func (s *Service) persist(ctx context.Context, inst *models.Installer, obj blob.Object, claimed string) error {
	digest, err := s.hashBlob(ctx, obj)
	if err != nil {
		return err
	}
	if claimed != "" && !strings.EqualFold(claimed, digest) {
		s.logger.Warn("Ignoring supplied installer digest",
			zap.String("file", obj.Path),
			zap.String("supplied", claimed),
			zap.String("computed", digest),
		)
	}
	inst.File = obj.Path
	inst.Size = obj.Size
	inst.SHA256 = digest
	return s.store.SaveInstaller(ctx, inst)
}

func (s *Service) hashBlob(ctx context.Context, obj blob.Object) (string, error) {
	rc, err := s.blobs.Open(ctx, obj.Path)
	if err != nil {
		return "", fmt.Errorf("reopen installer blob: %w", err)
	}
	defer rc.Close()

	digest, err := integrity.ComputeHash(rc)
	if err != nil {
		return "", err
	}
	s.metrics.RecordHashed(obj.Size)
	return digest, nil
}

// Delete removes the installer and its blob.
func (s *Service) Delete(ctx context.Context, tenantID string, id uint) error {
	file, err := s.store.DeleteInstaller(ctx, tenantID, id)
	if err != nil {
		return err
	}
	s.discard(ctx, file)
	return nil
}

// DeleteVersion removes the version, its installers and their blobs.
func (s *Service) DeleteVersion(ctx context.Context, tenantID string, id uint) error {
	files, err := s.store.DeleteVersion(ctx, tenantID, id)
	if err != nil {
		return err
	}
	for _, f := range files {
		s.discard(ctx, f)
	}
	return nil
}

// DeletePackage removes the package with everything below it.
func (s *Service) DeletePackage(ctx context.Context, tenantID, identifier string) error {
	files, err := s.store.DeletePackage(ctx, tenantID, identifier)
	if err != nil {
		return err
	}
	for _, f := range files {
		s.discard(ctx, f)
	}
	s.logger.Info("Package deleted",
		zap.String("tenant", tenantID),
		zap.String("identifier", identifier),
		zap.Int("blobs", len(files)),
	)
	return nil
}

// Verify re-reads the stored blob and compares it with the recorded digest.
func (s *Service) Verify(ctx context.Context, tenantID string, id uint) (bool, error) {
	inst, err := s.store.GetInstaller(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	rc, err := s.blobs.Open(ctx, inst.File)
	if err != nil {
		return false, fmt.Errorf("open installer blob: %w", err)
	}
	defer rc.Close()

	ok, err := integrity.Verify(rc, inst.SHA256)
	if err != nil {
		return false, err
	}
	s.metrics.RecordHashed(inst.Size)
	s.metrics.RecordIntegrityCheck(ok)
	if !ok {
		s.logger.Warn("Installer content does not match recorded digest",
			zap.String("tenant", tenantID),
			zap.Uint("installer_id", inst.ID),
			zap.String("file", inst.File),
		)
	}
	return ok, nil
}

// discard deletes a blob whose row is gone or was never written. Failures
// only leave an orphaned file behind, so they are logged and swallowed.
func (s *Service) discard(ctx context.Context, p string) {
	if p == "" {
		return
	}
	if err := s.blobs.Delete(ctx, p); err != nil {
		s.logger.Warn("Failed to delete installer blob", zap.String("file", p), zap.Error(err))
	}
}
