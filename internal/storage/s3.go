package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/schemagraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// ImageStore keeps rendered diagrams.
type ImageStore interface {
	PutImage(ctx context.Context, key string, contentType string, data []byte) error
	GetImage(ctx context.Context, key string) ([]byte, string, error)
	Exists(ctx context.Context, key string) (bool, error)
	DownloadLink(ctx context.Context, key string) (string, error)
}

type S3Store struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
	linkExpiry     time.Duration
}

type NewS3StoreParams struct {
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	PublicEndpoint string
	LinkExpiry     time.Duration
}

// S3ParamsFromEnv reads the AWS_* variables.
func S3ParamsFromEnv() NewS3StoreParams {
	return NewS3StoreParams{
		Region:         util.GetEnv("AWS_REGION"),
		Endpoint:       util.GetEnv("AWS_ENDPOINT"),
		AccessKey:      util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey:      util.GetEnv("AWS_SECRET_KEY"),
		Bucket:         util.GetEnv("AWS_BUCKET"),
		PublicEndpoint: util.GetEnvString("AWS_PUBLIC_ENDPOINT", ""),
		LinkExpiry:     util.GetEnvDuration("AWS_LINK_EXPIRY", 15*time.Minute),
	}
}

func NewS3Store(ctx context.Context, params NewS3StoreParams) (*S3Store, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	expiry := params.LinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Store{
		client:         client,
		bucket:         params.Bucket,
		publicEndpoint: params.PublicEndpoint,
		linkExpiry:     expiry,
	}, nil
}

func (s *S3Store) PutImage(ctx context.Context, key string, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

// GetImage returns the object body and its content type.
func (s *S3Store) GetImage(ctx context.Context, key string) ([]byte, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, aws.ToString(result.ContentType), nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat file in S3: %w", err)
}

// DownloadLink presigns a GET for key. When AWS_PUBLIC_ENDPOINT is set the
// link is signed for that host so it works outside the cluster network.
func (s *S3Store) DownloadLink(ctx context.Context, key string) (string, error) {
	presignClient := s.client
	prefix := ""

	if s.publicEndpoint != "" {
		publicURL, err := url.Parse(s.publicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", s.publicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")
		publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

		presignClient = s3.NewFromConfig(
			aws.Config{
				Region:      s.client.Options().Region,
				Credentials: s.client.Options().Credentials,
				HTTPClient:  s.client.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(publicBaseEndpoint)
				o.UsePathStyle = true
			},
		)
	}

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(s.linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix == "" {
		return out.URL, nil
	}
	signedURL, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signedURL.Path = prefix + signedURL.Path
	return signedURL.String(), nil
}

// ImageKey builds the object key for a rendered diagram.
func ImageKey(prefix, id, ext string) string {
	return fmt.Sprintf("%s/%s.%s", strings.TrimSuffix(prefix, "/"), id, ext)
}
