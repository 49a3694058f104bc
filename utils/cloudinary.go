package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Upload folders.
const (
	FolderEvents         = "haojiu/events"
	FolderPosters        = "haojiu/posters"
	FolderTreasurePoints = "haojiu/treasure-points"
	FolderAvatars        = "haojiu/avatars"
)

var ErrUploadsDisabled = errors.New("file uploads are not configured")

// Uploader stores images and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, folder string) (string, error)
	Delete(ctx context.Context, imageURL string) error
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, file io.Reader, folder string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: folder})
	if err != nil {
		return "", fmt.Errorf("upload error: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("upload error: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// Delete removes an image by its delivery URL.
func (c *Cloudinary) Delete(ctx context.Context, imageURL string) error {
	publicID, err := ExtractPublicID(imageURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// NoUploads is used when Cloudinary credentials are missing.
type NoUploads struct{}

func (NoUploads) Upload(context.Context, io.Reader, string) (string, error) {
	return "", ErrUploadsDisabled
}

func (NoUploads) Delete(context.Context, string) error {
	return ErrUploadsDisabled
}

// ExtractPublicID returns the public ID of a Cloudinary delivery URL:
// everything after /upload/, minus an optional v<digits> version segment
// and the file extension.
//
//	https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.jpg -> events/abc123
func ExtractPublicID(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	i := 0
	for i < len(parts) && parts[i] != "upload" {
		i++
	}
	rest := parts[min(i+1, len(parts)):]
	if i == len(parts) || len(rest) == 0 {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}
	if isVersion(rest[0]) && len(rest) > 1 {
		rest = rest[1:]
	}

	id := path.Join(rest...)
	return strings.TrimSuffix(id, path.Ext(id)), nil
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
