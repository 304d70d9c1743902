package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/metrics/smithyotelmetrics"
	"go.opentelemetry.io/otel"
)

// ClientConfig describes how to reach the bucket this backend serves.
// One Provider talks to exactly one bucket; there is no per-call
// credential switching the way a multi-tenant FTP/SFTP client would need.
type ClientConfig struct {
	Endpoint   string
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string

	// UploadBytesPerSecLimit caps Save/UploadPart throughput; 0 disables it.
	UploadBytesPerSecLimit float64
}

func newAPIClient(cfg ClientConfig) *awss3.Client {
	options := awss3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		}),
		MeterProvider: smithyotelmetrics.Adapt(otel.GetMeterProvider()),
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
		options.UsePathStyle = true
	}
	return awss3.New(options)
}
