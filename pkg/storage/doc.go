// Package storage provides blob backends for uploaded files.
//
// # Overview
//
// Profile pictures are written under a flat key space of sanitized file
// names. Two backends implement BlobStorage:
//
//   - FileSystemStorage: files under a root directory (default
//     wwwroot/uploads/profile-pictures)
//   - S3Storage: objects in an S3 or MinIO bucket, traced with OpenTelemetry
//
// # Usage
//
//	blobs, err := storage.NewFileSystemStorage(cfg.Uploads.Dir)
//	err = blobs.Put(ctx, "12_5f0c.png", file, size, "image/png")
//	rc, err := blobs.Get(ctx, "12_5f0c.png")
//	if errors.Is(err, storage.ErrNotFound) { ... }
package storage
