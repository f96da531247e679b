// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	nomadconfig "nomad-gis/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const badgePrefix = "badges"

// R2 stores achievement badges in a Cloudflare R2 bucket through the S3 API.
type R2 struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

func NewR2(ctx context.Context, cfg nomadconfig.R2Config) (*R2, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("R2 is not configured")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	cdnBaseURL := cfg.PublicBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint + "/" + cfg.Bucket
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &R2{client: client, bucket: cfg.Bucket, cdnBaseURL: strings.TrimRight(cdnBaseURL, "/")}, nil
}

// BadgeObjectKey builds the object key for a badge, e.g.
// "badges/open-1-point-1a2b3c4d.png".
func BadgeObjectKey(code, filename, id string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s/%s-%s%s", badgePrefix, slug.Make(strings.ReplaceAll(code, "_", " ")), id, ext)
}

// ObjectKeyFromURL reverses the public URL produced for key under base.
func ObjectKeyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}

// UploadBadge uploads a multipart file to R2 and returns the public URL.
func (r *R2) UploadBadge(ctx context.Context, code string, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	key := BadgeObjectKey(code, fileHeader.Filename, uuid.NewString())
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.cdnBaseURL, key), nil
}

// DeleteBadge removes the object behind a URL previously returned by UploadBadge.
func (r *R2) DeleteBadge(ctx context.Context, url string) error {
	key, ok := ObjectKeyFromURL(r.cdnBaseURL, url)
	if !ok {
		return fmt.Errorf("url %q is not served from %s", url, r.cdnBaseURL)
	}
	if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s from R2: %w", key, err)
	}
	return nil
}
