package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const MaxUploadSize = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidKey      = errors.New("invalid receipt key")
	ErrTooLarge        = fmt.Errorf("file exceeds %d bytes", MaxUploadSize)
)

var allowedExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// Saver stores uploaded files and returns the key recorded in the database.
// Remove drops a stored file whose upload was not recorded.
type Saver interface {
	Save(ctx context.Context, folder, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, key string) error
}

// Key builds "<folder>/<uuid><ext>" and rejects extensions that are not receipts or images.
func Key(folder, filename string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedExt[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return path.Join(folder, uuid.NewString()+ext), contentType, nil
}

type Local struct {
	Dir string
}

func (l *Local) Save(_ context.Context, folder, filename string, r io.Reader) (string, error) {
	key, _, err := Key(folder, filename)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if err == nil && n > MaxUploadSize {
		err = ErrTooLarge
	}
	if err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	return key, f.Close()
}

func (l *Local) Remove(_ context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Path resolves key to a file under Dir.
func (l *Local) Path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.Dir, filepath.FromSlash(clean)), nil
}

type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3(ctx context.Context, cfg *config.Config) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, presign: s3.NewPresignClient(client), bucket: cfg.S3Bucket}, nil
}

func (s *S3) Save(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	key, contentType, err := Key(folder, filename)
	if err != nil {
		return "", err
	}
	// The SDK needs a seekable body to sign the payload.
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxUploadSize {
		return "", ErrTooLarge
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logging.Logg.Error("Failed to upload receipt", "key", key, "error", err)
		return "", err
	}
	return key, nil
}

func (s *S3) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// URL returns a short lived download link for key.
func (s *S3) URL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// New picks S3 when a bucket is configured, the local directory otherwise.
func New(ctx context.Context, cfg *config.Config) (Saver, error) {
	if cfg.S3Bucket != "" {
		return NewS3(ctx, cfg)
	}
	return &Local{Dir: cfg.UploadDir}, nil
}
