package media

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader stores product images on Cloudinary.
type Uploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewUploader(cloudName, apiKey, apiSecret, folder string) (*Uploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Uploader{cld: cld, folder: folder}, nil
}

// Upload sends one image and returns its HTTPS URL.
func (u *Uploader) Upload(ctx context.Context, body io.Reader, filename string) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		Folder:         u.folder,
		UniqueFilename: boolPtr(true),
		ResourceType:   "image",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", filename, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", filename, res.Error.Message)
	}
	return res.SecureURL, nil
}

func boolPtr(b bool) *bool { return &b }
