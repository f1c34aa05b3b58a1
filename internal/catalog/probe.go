package catalog

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// DirectoryProber decides whether an object resource names a directory-like
// prefix. An error means the answer is unknown.
type DirectoryProber interface {
	IsDirectory(ctx context.Context, r types.Resource) (bool, error)
}

// HintProber answers from the catalog's directory hint.
type HintProber struct{}

// IsDirectory implements DirectoryProber.
func (HintProber) IsDirectory(_ context.Context, r types.Resource) (bool, error) {
	if r.Directory == nil {
		return false, errors.Newf(errors.ErrCodeProbeFailed,
			"catalog has no directory hint for %s", r.CloudID()).
			WithComponent("probe")
	}
	return *r.Directory, nil
}

// CloudProber dispatches to a prober per cloud. A missing prober falls back
// to HintProber.
type CloudProber struct {
	GCS DirectoryProber
	S3  DirectoryProber
}

// IsDirectory implements DirectoryProber.
func (p CloudProber) IsDirectory(ctx context.Context, r types.Resource) (bool, error) {
	var prober DirectoryProber
	switch r.Kind.Cloud() {
	case "gcs":
		prober = p.GCS
	case "s3":
		prober = p.S3
	}
	if prober == nil {
		prober = HintProber{}
	}
	return prober.IsDirectory(ctx, r)
}

// S3Config configures the S3 prefix prober.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// listObjectsAPI is the part of the S3 client the prober needs.
type listObjectsAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Prober lists at most one key under an object's prefix. A catalog hint,
// when present, wins and no request is made.
type S3Prober struct {
	client listObjectsAPI
	logger *utils.StructuredLogger
}

// NewS3Prober loads the default AWS configuration and creates a prober.
func NewS3Prober(ctx context.Context, cfg S3Config, logger *utils.StructuredLogger) (*S3Prober, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to load AWS config").
			WithComponent("probe")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return newS3Prober(client, logger), nil
}

func newS3Prober(client listObjectsAPI, logger *utils.StructuredLogger) *S3Prober {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &S3Prober{client: client, logger: logger.WithComponent("probe")}
}

// IsDirectory implements DirectoryProber.
func (p *S3Prober) IsDirectory(ctx context.Context, r types.Resource) (bool, error) {
	if r.Directory != nil {
		return *r.Directory, nil
	}

	prefix := strings.Trim(r.Object, "/")
	if prefix == "" {
		// The whole bucket.
		return true, nil
	}
	prefix += "/"

	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(1),
	})
	if err != nil {
		p.logger.Warn("Prefix lookup failed", map[string]interface{}{
			"bucket": r.Bucket,
			"prefix": prefix,
			"error":  err.Error(),
		})
		return false, translateS3Error(err, r)
	}

	return aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func translateS3Error(err error, r types.Resource) error {
	code := errors.ErrCodeProbeFailed
	var noSuchBucket *s3types.NoSuchBucket
	var apiErr smithy.APIError
	switch {
	case stderrors.As(err, &noSuchBucket):
		code = errors.ErrCodeMountTargetNotFound
	case stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "AccessDenied" || apiErr.ErrorCode() == "Forbidden"):
		code = errors.ErrCodeMountAccessDenied
	}
	return errors.Wrap(err, code, "failed to look up "+r.CloudID()).
		WithComponent("probe").
		WithContext("bucket", r.Bucket)
}
