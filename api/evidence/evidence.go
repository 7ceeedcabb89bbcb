package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists an uploaded evidence file and returns the path or URL
// recorded on the FIR
type Store interface {
	Save(ctx context.Context, file *multipart.FileHeader) (string, error)
	// Remove deletes a file previously returned by Save. Removing a file
	// that no longer exists is not an error.
	Remove(ctx context.Context, path string) error
}

// LocalStore writes evidence below Dir. Saved files are served back from
// /uploads/.
type LocalStore struct {
	Dir string
}

// NewLocalStore returns a LocalStore rooted at dir, creating it if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

// Save implements Store
func (s *LocalStore) Save(_ context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := uuid.New().String() + cleanExt(file.Filename)
	dst, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	return "uploads/" + name, nil
}

// Remove implements Store
func (s *LocalStore) Remove(_ context.Context, path string) error {
	name := filepath.Base(path)
	if name == "." || name == "/" || name == "" {
		return fmt.Errorf("invalid evidence path %q", path)
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove evidence file: %w", err)
	}
	return nil
}

func cleanExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

// CloudinaryStore uploads evidence to a Cloudinary folder
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStore builds a CloudinaryStore from a cloudinary:// URL
func NewCloudinaryStore(cloudinaryURL, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// Save implements Store
func (s *CloudinaryStore) Save(ctx context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	result, err := s.cld.Upload.Upload(ctx, src, uploader.UploadParams{
		Folder:   s.folder,
		PublicID: uuid.New().String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload evidence: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected evidence: %s", result.Error.Message)
	}
	zap.S().Debugw("evidence uploaded", "publicId", result.PublicID)
	return result.SecureURL, nil
}

// Remove implements Store. path is the secure URL returned by Save.
func (s *CloudinaryStore) Remove(ctx context.Context, path string) error {
	resourceType, publicID, err := assetFromURL(path)
	if err != nil {
		return err
	}
	result, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("failed to destroy evidence: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("cloudinary refused to destroy evidence: %s", result.Error.Message)
	}
	zap.S().Debugw("evidence destroyed", "publicId", publicID, "result", result.Result)
	return nil
}

// assetFromURL splits a delivery URL of the form
// /<cloud>/<resource type>/<delivery type>/v<version>/<public id>.<ext>
func assetFromURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid evidence url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 {
		return "", "", fmt.Errorf("invalid evidence url %q", raw)
	}
	resourceType, rest := parts[1], parts[3:]
	if len(rest) > 1 && len(rest[0]) > 1 && rest[0][0] == 'v' && isDigits(rest[0][1:]) {
		rest = rest[1:]
	}
	publicID := strings.Join(rest, "/")
	if resourceType != "raw" {
		publicID = strings.TrimSuffix(publicID, filepath.Ext(publicID))
	}
	if publicID == "" {
		return "", "", fmt.Errorf("invalid evidence url %q", raw)
	}
	return resourceType, publicID, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
