// Package ingest orchestrates the write path: hash, dedup check, path
// resolution, disk write, record insert, and the best-effort completion
// broadcast, for both full-resolution uploads and thumbnail batches.
package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/metrics"
	"github.com/cubesync/cube-server/internal/scanning"
	"github.com/cubesync/cube-server/internal/storage"
	"github.com/cubesync/cube-server/internal/store"
	"github.com/cubesync/cube-server/internal/thumbs"
	"github.com/cubesync/cube-server/internal/utils"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Broadcaster delivers best-effort notifications to connected clients.
type Broadcaster interface {
	Broadcast(event any)
}

// ThumbItem is one entry of a thumbnail batch as sent by the client.
type ThumbItem struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Size        string     `json:"size"`
	Hash        string     `json:"hash"`
	Status      string     `json:"status"`
	ThumbBase64 string     `json:"thumb_base64"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
}

// Photo is one gallery listing entry.
type Photo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Name   string `json:"name"`
	Size   string `json:"size"`
	Status string `json:"status"`
}

// UploadResult reports the outcome of a full-resolution upload.
type UploadResult struct {
	Hash      string
	Path      string
	Duplicate bool
}

// copiedEvent notifies connected clients that a file finished syncing.
type copiedEvent struct {
	Event  string `json:"event"`
	Hash   string `json:"hash"`
	Status string `json:"status"`
	Path   string `json:"path"`
}

// Service is the ingestion service. All dependencies are injected; there
// is no ambient state.
type Service struct {
	store        *store.Store
	hub          Broadcaster
	uploadDir    *storage.UploadDir
	thumbDir     string
	scanner      *scanning.Scanner
	generator    *thumbs.Generator
	minFreeBytes uint64

	// statCache memoizes thumbnail stat() results for listing.
	statCache *cache.Cache
}

// NewService wires the ingestion service.
func NewService(s *store.Store, h Broadcaster, dir *storage.UploadDir, thumbDir string,
	scanner *scanning.Scanner, generator *thumbs.Generator, minFreeBytes uint64) *Service {
	return &Service{
		store:        s,
		hub:          h,
		uploadDir:    dir,
		thumbDir:     thumbDir,
		scanner:      scanner,
		generator:    generator,
		minFreeBytes: minFreeBytes,
		statCache:    cache.New(30*time.Second, time.Minute),
	}
}

// UploadRaw ingests one full-resolution payload. Identical bytes uploaded
// twice write and record exactly once: the second call is a no-op reported
// as a duplicate. The record insert happens only after the file write
// succeeded, so a failed write leaves no partial record.
func (s *Service) UploadRaw(ctx context.Context, data []byte, username, filename string, modifiedAt *time.Time) (*UploadResult, error) {
	start := time.Now()

	hash := storage.ComputeSHA256(data)

	exists, err := s.store.UploadExists(ctx, hash)
	if err != nil {
		metrics.UploadErrorsTotal.Inc()
		return nil, err
	}
	if exists {
		metrics.DuplicatesTotal.Inc()
		log.Infof("File %s already exists", hash)
		return &UploadResult{Hash: hash, Duplicate: true}, nil
	}

	var path string
	err = s.uploadDir.WithRead(func(base string) error {
		if s.minFreeBytes > 0 {
			if err := storage.CheckStorageSpace(base, s.minFreeBytes); err != nil {
				return err
			}
		}

		p, err := storage.ResolveOutputPath(base, username, filename, modifiedAt)
		if err != nil {
			return err
		}
		if err := storage.SaveFile(p, data); err != nil {
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		metrics.UploadErrorsTotal.Inc()
		return nil, err
	}

	if err := s.scanner.ScanFile(path); err != nil {
		os.Remove(path)
		metrics.UploadErrorsTotal.Inc()
		return nil, fmt.Errorf("upload rejected: %w", err)
	}

	if err := s.store.InsertUpload(ctx, hash, filename, ""); err != nil {
		metrics.UploadErrorsTotal.Inc()
		return nil, err
	}

	if err := s.generator.GenerateFromBytes(hash, data); err != nil {
		log.Warnf("Thumbnail generation failed for %s: %v", hash, err)
	} else {
		s.statCache.Delete(hash)
	}

	log.Infof("Received and saved: %s (%s)", path, utils.FormatBytes(int64(len(data))))
	metrics.UploadsTotal.Inc()
	metrics.UploadSizeBytes.Observe(float64(len(data)))
	metrics.UploadDuration.Observe(time.Since(start).Seconds())

	// Store lock is long released; the fanout is best-effort and its
	// failures are invisible to the uploader.
	s.hub.Broadcast(copiedEvent{
		Event:  "copied",
		Hash:   hash,
		Status: "success",
		Path:   path,
	})

	return &UploadResult{Hash: hash, Path: path}, nil
}

// IngestThumbs applies a thumbnail batch. Each item's JPEG is decoded and
// written to {hash}.jpg (overwriting), then the surviving items' records
// are upserted in one transaction. A bad item is logged and skipped
// without aborting the rest of the batch.
func (s *Service) IngestThumbs(ctx context.Context, items []ThumbItem) error {
	if err := os.MkdirAll(s.thumbDir, 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	survivors := make([]store.ThumbRecord, 0, len(items))
	for _, item := range items {
		raw, err := base64.StdEncoding.DecodeString(item.ThumbBase64)
		if err != nil {
			metrics.ThumbErrorsTotal.Inc()
			log.Warnf("Failed to decode thumb %s: %v", item.Hash, err)
			continue
		}

		path := filepath.Join(s.thumbDir, item.Hash+".jpg")
		if err := os.WriteFile(path, raw, 0644); err != nil {
			metrics.ThumbErrorsTotal.Inc()
			log.Warnf("Failed to save thumb %s: %v", path, err)
			continue
		}

		s.statCache.Delete(item.Hash)
		survivors = append(survivors, store.ThumbRecord{
			Hash: item.Hash,
			Name: item.Name,
			Size: item.Size,
		})
	}

	if err := s.store.UpsertThumbs(ctx, survivors); err != nil {
		return err
	}

	metrics.ThumbsReceivedTotal.Add(float64(len(survivors)))
	log.Infof("Thumbnail batch processed: %d/%d items", len(survivors), len(items))
	return nil
}

// ListThumbs returns the gallery entries: every upload record whose
// {hash}.jpg is actually present in the thumbnail directory. Metadata
// drift against the filesystem is reconciled here at read time.
func (s *Service) ListThumbs(ctx context.Context) ([]Photo, error) {
	records, err := s.store.ListUploads(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Photo, 0, len(records))
	for _, rec := range records {
		if !s.thumbExists(rec.Hash) {
			continue
		}
		result = append(result, Photo{
			ID:     rec.Hash,
			URL:    fmt.Sprintf("/thumbs/%s.jpg", rec.Hash),
			Name:   rec.Filename,
			Size:   rec.Size,
			Status: "uploading",
		})
	}
	return result, nil
}

func (s *Service) thumbExists(hash string) bool {
	if v, found := s.statCache.Get(hash); found {
		return v.(bool)
	}

	_, err := os.Stat(filepath.Join(s.thumbDir, hash+".jpg"))
	exists := err == nil
	s.statCache.Set(hash, exists, cache.DefaultExpiration)
	return exists
}
