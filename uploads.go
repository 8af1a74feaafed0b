package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nine4-team/inventory_backend/config"
	"github.com/nine4-team/inventory_backend/importer"
	"github.com/nine4-team/inventory_backend/utils"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// gcsUploader is the binary upload service handed to the finalization
// worker: it stores bytes under <tenant>/<folder>/<uuid><ext> and derives a
// 200px thumbnail for images.
type gcsUploader struct {
	logger *logrus.Logger
}

func (u gcsUploader) Upload(ctx context.Context, businessId string, folder string, file importer.AssetFile) (importer.StoredFile, error) {
	if businessId == "" {
		return importer.StoredFile{}, fmt.Errorf("business id is required")
	}
	if len(file.Data) == 0 {
		return importer.StoredFile{}, fmt.Errorf("file %q is empty", file.Name)
	}
	if int64(len(file.Data)) > maxUploadSizeBytes {
		return importer.StoredFile{}, fmt.Errorf("file %q exceeds 5MB limit", file.Name)
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = utils.DetectMimeType(file.Name, file.Data)
	}
	if !attachmentMimeTypes[mimeType] {
		return importer.StoredFile{}, fmt.Errorf("unsupported file type: %s", mimeType)
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" {
		ext = extensionFromMimeType(mimeType)
	}
	objectKey := path.Join(businessId, folder, uuid.New().String()+ext)

	if err := utils.UploadBytesToGCS(ctx, objectKey, file.Data, mimeType); err != nil {
		return importer.StoredFile{}, err
	}

	stored := importer.StoredFile{
		URL:       utils.BuildObjectAccessURL(objectKey),
		ObjectKey: objectKey,
		Size:      int64(len(file.Data)),
		MimeType:  mimeType,
	}

	if imageMimeTypes[mimeType] {
		thumbnailKey, err := createThumbnail(ctx, objectKey, file.Data)
		if err != nil {
			// A missing derived thumbnail is not worth failing the upload.
			logUploadError(u.logger, err, objectKey)
		} else {
			stored.ThumbnailURL = utils.BuildObjectAccessURL(thumbnailKey)
		}
	}

	return stored, nil
}

// Delete removes the object and its derived thumbnail. Missing objects are
// not an error, so cleanup can rerun safely.
func (u gcsUploader) Delete(ctx context.Context, objectKey string) error {
	if err := utils.DeleteObjectFromGCS(ctx, objectKey); err != nil {
		return err
	}
	return utils.DeleteObjectFromGCS(ctx, thumbnailObjectKey(objectKey))
}

func createThumbnail(ctx context.Context, objectKey string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := utils.UploadBytesToGCS(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

// uploadObjectHandler streams a stored object. The key parameter accepts a
// raw object key or any access URL this service handed out.
func uploadObjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		objectKey := utils.ExtractObjectKeyFromURL(c.Query("key"))
		if objectKey == "" || strings.Contains(objectKey, "..") || strings.HasPrefix(objectKey, "/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		client, err := utils.GetGCSClient(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage client error"})
			return
		}
		defer client.Close()

		bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
		if bucket == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "GCS_BUCKET is required"})
			return
		}
		obj := client.Bucket(bucket).Object(objectKey)
		attrs, err := obj.Attrs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		reader, err := obj.NewReader(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		defer reader.Close()

		if attrs != nil && attrs.ContentType != "" {
			c.Writer.Header().Set("Content-Type", attrs.ContentType)
		}
		if attrs != nil && attrs.Size > 0 {
			c.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", attrs.Size))
		}
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, reader)
	}
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, objectKey string) {
	if logger == nil {
		logger = config.GetLogger()
	}
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"object_key": objectKey,
	}).Error("[upload.error]")
}
