package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const MaxImageBytes = 5 << 20

var (
	ErrImageHostDisabled    = errors.New("photo uploads are not configured")
	ErrUnsupportedImageType = errors.New("photo must be a JPEG, PNG or WebP image")
	ErrImageTooLarge        = errors.New("photo must be between 1 byte and 5MB")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadTicket lets a client PUT a deposit photo straight to object storage.
type UploadTicket struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"public_url"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ImageHost signs uploads to an S3 compatible bucket (MinIO in development).
type ImageHost struct {
	presign    *s3.PresignClient
	bucket     string
	publicBase string
	expiry     time.Duration
	now        func() time.Time
}

func NewImageHost(ctx context.Context, cfg *config.Config) (*ImageHost, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := strings.TrimRight(cfg.S3PublicBaseURL, "/")
	if publicBase == "" {
		if cfg.S3Endpoint != "" {
			publicBase = strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
		}
	}

	return &ImageHost{
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.S3Bucket,
		publicBase: publicBase,
		expiry:     cfg.S3UploadExpiry,
		now:        time.Now,
	}, nil
}

// ValidateImage checks the declared type and size of a photo.
func ValidateImage(contentType string, size int64) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedImageType
	}
	if size <= 0 || size > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	return ext, nil
}

// PresignUpload returns a signed PUT for a photo of the given type and size.
// The signature covers Content-Type and Content-Length, so the client cannot
// upload something other than what it declared.
func (h *ImageHost) PresignUpload(ctx context.Context, appID, contentType string, size int64) (*UploadTicket, error) {
	if h == nil {
		return nil, ErrImageHostDisabled
	}
	ext, err := ValidateImage(contentType, size)
	if err != nil {
		return nil, err
	}

	now := h.now().UTC()
	key := fmt.Sprintf("deposits/%s/%s/%s%s", appID, now.Format("2006/01/02"), uuid.New(), ext)

	req, err := h.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(strings.ToLower(contentType)),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(h.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &UploadTicket{
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   flattenHeaders(req.SignedHeader),
		PublicURL: h.publicBase + "/" + key,
		Key:       key,
		ExpiresAt: now.Add(h.expiry),
	}, nil
}

func flattenHeaders(hdr http.Header) map[string]string {
	out := make(map[string]string, len(hdr))
	for k, v := range hdr {
		if len(v) == 0 || strings.EqualFold(k, "Host") {
			continue
		}
		out[k] = v[0]
	}
	return out
}
