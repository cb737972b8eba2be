package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
	"github.com/itchan-dev/imagehost/internal/metrics"
)

type ImageService interface {
	Upload(ctx context.Context, files []domain.UploadedFile) (*domain.UploadResult, error)
	Download(ctx context.Context, id, size string) (*domain.ImageStream, error)
	Metadata(ctx context.Context, id string) (any, error)
	Ping(ctx context.Context) error
}

// BatchPolicy decides what happens to artifacts already written when a
// batch aborts.
type BatchPolicy string

const (
	BatchKeep     BatchPolicy = "keep"
	BatchRollback BatchPolicy = "rollback"
)

type ImageConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	Sizes             domain.Sizes
	ResizeWorkers     int
	BatchPolicy       BatchPolicy
}

type Image struct {
	cfg       ImageConfig
	store     ArtifactStore
	extractor MetadataExtractor
	codec     ImageCodec
	publisher EventPublisher
	ids       domain.IDGenerator
	metrics   metrics.Pipeline
	now       func() time.Time
}

type ImageDependencies struct {
	Store     ArtifactStore
	Extractor MetadataExtractor
	Codec     ImageCodec
	Publisher EventPublisher
	IDs       domain.IDGenerator
	Metrics   metrics.Pipeline
}

// NewImage builds the upload pipeline and retrieval service. Publisher, IDs
// and Metrics are optional.
func NewImage(cfg ImageConfig, deps ImageDependencies) *Image {
	if cfg.ResizeWorkers < 1 {
		cfg.ResizeWorkers = 1
	}
	if cfg.BatchPolicy == "" {
		cfg.BatchPolicy = BatchKeep
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = domain.DefaultSizes
	}
	s := &Image{
		cfg:       cfg,
		store:     deps.Store,
		extractor: deps.Extractor,
		codec:     deps.Codec,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	if s.ids == nil {
		s.ids = domain.UUIDGenerator{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	return s
}

// written records every key stored during one Upload call. Resize workers
// append to it concurrently.
type written struct {
	mu   sync.Mutex
	keys []domain.ArtifactKey
}

func (w *written) add(key domain.ArtifactKey) {
	w.mu.Lock()
	w.keys = append(w.keys, key)
	w.mu.Unlock()
}

// Upload processes files in order and aborts the whole batch on the first
// failure. No identifiers are returned for an aborted batch.
func (s *Image) Upload(ctx context.Context, files []domain.UploadedFile) (*domain.UploadResult, error) {
	batch := &written{}
	accepted := make([]domain.UploadedEvent, 0, len(files))

	for _, file := range files {
		id, err := s.processFile(ctx, file, batch)
		if err != nil {
			if errors.IsValidation(err) {
				s.metrics.IncFilesProcessed(metrics.ResultRejected)
			} else {
				s.metrics.IncFilesProcessed(metrics.ResultFailed)
			}
			if s.cfg.BatchPolicy == BatchRollback {
				s.rollback(ctx, batch.keys)
			}
			return nil, err
		}
		s.metrics.IncFilesProcessed(metrics.ResultSuccess)
		accepted = append(accepted, domain.UploadedEvent{
			ID:         id,
			Filename:   filepath.Base(file.Filename),
			Sizes:      s.cfg.Sizes.Names(),
			UploadedAt: s.now().UTC(),
		})
	}

	result := &domain.UploadResult{IDs: make([]domain.ImageID, len(accepted))}
	for i, event := range accepted {
		result.IDs[i] = event.ID
		s.publish(ctx, event)
	}
	return result, nil
}

func (s *Image) processFile(ctx context.Context, file domain.UploadedFile, batch *written) (domain.ImageID, error) {
	if file.Size > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", errors.ErrFileTooLarge, file.Filename, file.Size, s.cfg.MaxFileSize)
	}
	if !s.allowedExtension(file.Filename) {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, file.Filename)
	}
	data, err := io.ReadAll(io.LimitReader(file.Content, s.cfg.MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file.Filename, err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", errors.ErrFileTooLarge, file.Filename, s.cfg.MaxFileSize)
	}

	id := s.ids.NewID()

	start := time.Now()
	doc, err := s.extractor.Extract(file.Filename, data)
	if err != nil {
		return "", fmt.Errorf("extract metadata of %s: %w", file.Filename, err)
	}
	docJSON, err := s.extractor.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize metadata of %s: %w", file.Filename, err)
	}
	if err := s.put(ctx, batch, domain.ArtifactKey{ID: id, Class: domain.ClassMetadata}, docJSON); err != nil {
		return "", err
	}
	s.metrics.ObserveStage(metrics.StageMetadata, time.Since(start).Seconds())

	start = time.Now()
	img, err := s.codec.Decode(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", file.Filename, err)
	}
	s.metrics.ObserveStage(metrics.StageDecode, time.Since(start).Seconds())

	start = time.Now()
	var original bytes.Buffer
	if err := s.codec.Encode(&original, img); err != nil {
		return "", fmt.Errorf("encode original of %s: %w", file.Filename, err)
	}
	if err := s.put(ctx, batch, domain.ArtifactKey{ID: id, Class: domain.ClassOriginal}, original.Bytes()); err != nil {
		return "", err
	}
	s.metrics.ObserveStage(metrics.StageOriginal, time.Since(start).Seconds())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResizeWorkers)
	for _, size := range s.cfg.Sizes {
		g.Go(func() error {
			start := time.Now()
			resized, err := s.codec.Resize(img, size.Width, 0)
			if err != nil {
				return fmt.Errorf("resize %s to %s: %w", file.Filename, size.Name, err)
			}
			var buf bytes.Buffer
			if err := s.codec.Encode(&buf, resized); err != nil {
				return fmt.Errorf("encode %s of %s: %w", size.Name, file.Filename, err)
			}
			if err := s.put(gctx, batch, domain.ArtifactKey{ID: id, Class: domain.Resized(size)}, buf.Bytes()); err != nil {
				return err
			}
			s.metrics.ObserveStage(metrics.StageResize, time.Since(start).Seconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	slog.Debug("image stored", "id", id, "filename", file.Filename, "bytes", len(data))
	return id, nil
}

func (s *Image) allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (s *Image) put(ctx context.Context, batch *written, key domain.ArtifactKey, data []byte) error {
	if err := s.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store %s: %w", key.Path(), err)
	}
	batch.add(key)
	s.metrics.IncArtifactsWritten(string(key.Class))
	return nil
}

// rollback deletes what the aborted batch wrote. It runs even when ctx is
// already cancelled.
func (s *Image) rollback(ctx context.Context, keys []domain.ArtifactKey) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			slog.Error("rollback failed", "key", key.Path(), "error", err)
		}
	}
	if len(keys) > 0 {
		slog.Info("rolled back aborted batch", "artifacts", len(keys))
	}
}

func (s *Image) publish(ctx context.Context, event domain.UploadedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishUploaded(ctx, event); err != nil {
		s.metrics.IncEventsPublished("error")
		slog.Warn("failed to publish upload event", "id", event.ID, "error", err)
		return
	}
	s.metrics.IncEventsPublished("ok")
}

// Download returns the resized image for id. An unknown size wins over an
// unknown id.
func (s *Image) Download(ctx context.Context, id, size string) (*domain.ImageStream, error) {
	target, ok := s.cfg.Sizes.Lookup(size)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidSize, size)
	}
	imageID, err := domain.ParseImageID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrNotFound, err)
	}

	key := domain.ArtifactKey{ID: imageID, Class: domain.Resized(target)}
	data, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(data)
	return &domain.ImageStream{
		Reader:      io.NopCloser(bytes.NewReader(data)),
		ContentType: domain.ContentTypeWebP,
		ETag:        `"` + hex.EncodeToString(sum[:16]) + `"`,
		Size:        int64(len(data)),
	}, nil
}

// Metadata returns the stored metadata document decoded into a generic value.
func (s *Image) Metadata(ctx context.Context, id string) (any, error) {
	imageID, err := domain.ParseImageID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrNotFound, err)
	}

	data, err := s.read(ctx, domain.ArtifactKey{ID: imageID, Class: domain.ClassMetadata})
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: stored document for %s: %w", errors.ErrMetadataParse, imageID, err)
	}
	return doc, nil
}

func (s *Image) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Image) read(ctx context.Context, key domain.ArtifactKey) ([]byte, error) {
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return data, nil
}
