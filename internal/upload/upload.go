// Package upload stores profile pictures and article thumbnails and returns
// their public URLs.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxImageSize = 1 << 20

	FolderProfiles   = "profiles"
	FolderThumbnails = "thumbnails"
)

var (
	ErrDisabled     = errors.New("uploads are disabled")
	ErrUnsupported  = errors.New("only jpg, jpeg, png and gif images are allowed")
	ErrTooLarge     = errors.New("image exceeds 1MB")
	ErrEmptyPayload = errors.New("empty file")
)

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

type Uploader interface {
	Upload(ctx context.Context, folder, filename, contentType string, data []byte) (string, error)
}

// Image is an uploaded file as received from the client.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Validate checks extension and size. It returns the content type to store
// the object with.
func Validate(img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyPayload
	}
	ct, ok := allowedExt[strings.ToLower(filepath.Ext(img.Filename))]
	if !ok {
		return "", ErrUnsupported
	}
	if len(img.Data) > MaxImageSize {
		return "", ErrTooLarge
	}
	return ct, nil
}

// ObjectKey builds a collision-free key below folder, keeping the extension.
func ObjectKey(folder, filename string) string {
	d := time.Now().UTC()
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%d/%02d/%s%s", folder, d.Year(), d.Month(), uuid.NewString(), ext)
}

type Disabled struct{}

func (Disabled) Upload(context.Context, string, string, string, []byte) (string, error) {
	return "", ErrDisabled
}
