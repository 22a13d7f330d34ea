package storage

import "context"

// UploadOptions conveys upload destination metadata.
type UploadOptions struct {
	Bucket    string
	KeyPrefix string
	// PublicBaseURL overrides the default bucket URL when serving through a
	// CDN or an S3-compatible endpoint.
	PublicBaseURL string
}

// Service stores media files remotely. UploadFile takes a local path and
// returns the public URL of the stored object.
type Service interface {
	UploadFile(ctx context.Context, localPath string, opts UploadOptions) (string, error)
}
