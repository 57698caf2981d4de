package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
)

// EndpointInvoker is the SageMaker runtime call used by SageMakerRegressor.
type EndpointInvoker interface {
	InvokeEndpointWithContext(ctx aws.Context, in *sagemakerruntime.InvokeEndpointInput, opts ...request.Option) (*sagemakerruntime.InvokeEndpointOutput, error)
}

type sageMakerRequest struct {
	Instances []sageMakerInstance `json:"instances"`
}

type sageMakerInstance struct {
	Features []float64 `json:"features"`
}

type sageMakerResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// SageMakerRegressor calls a hosted model. The endpoint receives
// {"instances":[{"features":[...]}]} and answers {"predictions":[[...]]}.
type SageMakerRegressor struct {
	client   EndpointInvoker
	endpoint string
	horizon  int
}

// NewSageMakerRegressor returns a regressor for endpoint.
func NewSageMakerRegressor(client EndpointInvoker, endpoint string, horizon int) (*SageMakerRegressor, error) {
	if client == nil {
		return nil, errors.New("sagemaker client is required")
	}
	if endpoint == "" {
		return nil, errors.New("sagemaker endpoint name is required")
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &SageMakerRegressor{client: client, endpoint: endpoint, horizon: horizon}, nil
}

// Predict implements Regressor.
func (r *SageMakerRegressor) Predict(ctx context.Context, row FeatureRow) ([]float64, error) {
	payload, err := json.Marshal(sageMakerRequest{
		Instances: []sageMakerInstance{{Features: row.Vector()}},
	})
	if err != nil {
		return nil, err
	}

	out, err := r.client.InvokeEndpointWithContext(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(r.endpoint),
		Body:         payload,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke endpoint %s: %w", r.endpoint, err)
	}

	var resp sageMakerResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("parse endpoint response: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return nil, errors.New("endpoint returned no predictions")
	}
	if got := len(resp.Predictions[0]); got != r.horizon {
		return nil, fmt.Errorf("endpoint returned %d values, want %d", got, r.horizon)
	}
	return resp.Predictions[0], nil
}
