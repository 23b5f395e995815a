package cloudinary

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client stores raw documents (reports, exports) on Cloudinary.
type Client interface {
	UploadRaw(ctx context.Context, file io.Reader, folder, publicID string) (url string, err error)
}

// BuildRawURL returns the delivery URL of a raw asset.
func BuildRawURL(cloudName, publicID string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/raw/upload/%s", cloudName, publicID)
}

var overwrite = true

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

// UploadRaw uploads file as a raw asset, replacing any asset with the same public id.
func (c *clientImpl) UploadRaw(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", err
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", result.Error.Message)
	}
	if result.SecureURL != "" {
		return result.SecureURL, nil
	}
	return BuildRawURL(c.cloudName, result.PublicID), nil
}

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		uploader:  up,
	}, nil
}
