package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ObjectStore is the S3 subset used for model artifacts.
type ObjectStore interface {
	GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// ParseS3URI splits s3://bucket/key. ok is false for other paths.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// LoadLinearModel reads a model artifact from a file path or an s3:// URI.
// objects may be nil for file paths.
func LoadLinearModel(ctx context.Context, path string, objects ObjectStore) (*LinearModel, error) {
	var data []byte
	if bucket, key, ok := ParseS3URI(path); ok {
		if objects == nil {
			return nil, errors.New("s3 model path needs an S3 client")
		}
		out, err := objects.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("download model: %w", err)
		}
		defer out.Body.Close()
		if data, err = io.ReadAll(out.Body); err != nil {
			return nil, fmt.Errorf("read model: %w", err)
		}
	} else {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read model: %w", err)
		}
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveLinearModel writes a model artifact to a file path or an s3:// URI.
func SaveLinearModel(ctx context.Context, path string, m *LinearModel, objects ObjectStore) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if bucket, key, ok := ParseS3URI(path); ok {
		if objects == nil {
			return errors.New("s3 model path needs an S3 client")
		}
		_, err := objects.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("upload model: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
