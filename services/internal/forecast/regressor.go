package forecast

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
)

// ModelConfig selects the regressor behind the forecast endpoint.
type ModelConfig struct {
	// ModelPath is a file path or s3://bucket/key of a LinearModel artifact.
	ModelPath string
	// SageMakerEndpoint takes precedence over ModelPath when set.
	SageMakerEndpoint string
	AWSRegion         string
	Horizon           int
}

// ErrNoModel means neither a model path nor an endpoint is configured.
var ErrNoModel = errors.New("no forecast model configured")

// NewAWSSession opens an AWS session for region.
func NewAWSSession(region string) (*session.Session, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	return session.NewSession(cfg)
}

// NewS3 returns an S3 client for model artifacts.
func NewS3(region string) (*s3.S3, error) {
	sess, err := NewAWSSession(region)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// NewRegressor builds the configured regressor.
func NewRegressor(ctx context.Context, cfg ModelConfig) (Regressor, error) {
	switch {
	case cfg.SageMakerEndpoint != "":
		sess, err := NewAWSSession(cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		reg, err := NewSageMakerRegressor(sagemakerruntime.New(sess), cfg.SageMakerEndpoint, cfg.Horizon)
		if err != nil {
			return nil, err
		}
		return reg, nil
	case cfg.ModelPath != "":
		var objects ObjectStore
		if _, _, ok := ParseS3URI(cfg.ModelPath); ok {
			client, err := NewS3(cfg.AWSRegion)
			if err != nil {
				return nil, err
			}
			objects = client
		}
		model, err := LoadLinearModel(ctx, cfg.ModelPath, objects)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
	return nil, ErrNoModel
}
