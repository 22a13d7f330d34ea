package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3Service uploads media files to Amazon S3 (or compatible APIs).
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// UploadFile stores a single local file under a random key and returns its
// public URL. The original file name only contributes its extension.
func (s *S3Service) UploadFile(ctx context.Context, localPath string, opts UploadOptions) (string, error) {
	if opts.Bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat local path: %w", err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("local path must be a file")
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	key := uuid.NewString() + ext
	if prefix := strings.Trim(opts.KeyPrefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open file %s: %w", localPath, err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(opts.Bucket),
		Key:    aws.String(key),
		Body:   f,
		ACL:    types.ObjectCannedACLPublicRead,
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}

	if base := strings.TrimSuffix(opts.PublicBaseURL, "/"); base != "" {
		return base + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", opts.Bucket, key), nil
}

var _ Service = (*S3Service)(nil)
