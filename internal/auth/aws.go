// Package auth builds the AWS client configuration used by all services.
package auth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// maxRetryAttempts bounds the SDK's standard retryer. Throttled calls are
// retried with backoff; a region that keeps failing is reported instead of
// blocking the other regions.
const maxRetryAttempts = 5

// LoadConfig resolves credentials from the default provider chain for the
// given region. An empty region falls back to the environment's default.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxRetryAttempts)
		}),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws configuration: %w", err)
	}
	return cfg, nil
}
