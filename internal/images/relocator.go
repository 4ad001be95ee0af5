// Package images relocates event cover images from facebook's CDN into owned
// object storage so the frontend never links expiring CDN URLs.
package images

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

const relocateTimeout = 15 * time.Second

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string // base URL the bucket is served from
	UseSSL    bool
}

type Relocator struct {
	mc     *minio.Client
	http   *http.Client
	cfg    Config
	logger logger.Logger
}

func NewRelocator(cfg Config, l logger.Logger) (*Relocator, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage client init failed: %w", err)
	}

	return &Relocator{
		mc:     mc,
		http:   &http.Client{},
		cfg:    cfg,
		logger: l,
	}, nil
}

// Relocate downloads srcURL and uploads it to events/{year}/{eventID}.{ext},
// returning the owned URL. Callers fall back to srcURL on any error; a failed
// relocation must never block event persistence.
func (r *Relocator) Relocate(ctx context.Context, srcURL string, eventID string, start time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, relocateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("bad cover url: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cover download failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover download responded %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	objectPath := objectName(eventID, start, srcURL, contentType)

	_, err = r.mc.PutObject(ctx, r.cfg.Bucket, objectPath, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("cover upload failed: %w", err)
	}

	owned := strings.TrimSuffix(r.cfg.PublicURL, "/") + "/" + objectPath
	r.logger.Debug("Relocated event cover", "event_id", eventID, "url", owned)

	return owned, nil
}

// objectName builds the deterministic storage path events/{year}/{eventID}.{ext}.
// The extension comes from the source URL, falling back to the content type.
func objectName(eventID string, start time.Time, srcURL string, contentType string) string {
	ext := ""
	if u, err := url.Parse(srcURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if ext == "" {
		switch contentType {
		case "image/png":
			ext = ".png"
		case "image/gif":
			ext = ".gif"
		case "image/webp":
			ext = ".webp"
		default:
			ext = ".jpg"
		}
	}

	return "events/" + strconv.Itoa(start.Year()) + "/" + eventID + ext
}
