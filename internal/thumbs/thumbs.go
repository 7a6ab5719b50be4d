// Package thumbs generates JPEG thumbnails for uploaded images so fresh
// uploads show up in the gallery listing before the client re-syncs its
// own thumbnail batch.
package thumbs

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Generator renders fitted JPEG thumbnails into the thumbnail directory.
type Generator struct {
	dir     string
	width   int
	height  int
	quality int
	enabled bool
}

// NewGenerator creates a generator writing {hash}.jpg files into dir.
func NewGenerator(dir string, width, height, quality int, enabled bool) *Generator {
	return &Generator{
		dir:     dir,
		width:   width,
		height:  height,
		quality: quality,
		enabled: enabled,
	}
}

// GenerateFromBytes creates {hash}.jpg from an uploaded payload. A payload
// that is not a decodable image is not an error, just nothing to do; an
// existing thumbnail is left alone (the client's own batch already
// provided one).
func (g *Generator) GenerateFromBytes(hash string, data []byte) error {
	if g == nil || !g.enabled {
		return nil
	}

	target := filepath.Join(g.dir, hash+".jpg")
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		log.Debugf("Payload %s is not a decodable image, skipping thumbnail", hash)
		return nil
	}

	thumb := imaging.Fit(src, g.width, g.height, imaging.Lanczos)

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: g.quality}); err != nil {
		os.Remove(target)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	log.Debugf("Generated thumbnail for %s", hash)
	return nil
}
