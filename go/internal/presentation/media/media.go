// Package media turns background image references into URLs a presenter can
// load.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

const DefaultPresignTTL = 15 * time.Minute

var (
	ErrUnsupportedScheme = errors.New("unsupported background reference")
	ErrNoPresigner       = errors.New("s3 references are not configured")
)

// Presigner is the part of the S3 presign client the resolver uses.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Config struct {
	Region     string
	Profile    string
	PresignTTL time.Duration
}

// Resolver maps stored backgroundUrl values to loadable URLs.
type Resolver struct {
	presigner Presigner
	ttl       time.Duration
}

// NewResolver builds a resolver. A nil presigner leaves s3:// references
// unresolvable.
func NewResolver(presigner Presigner, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &Resolver{presigner: presigner, ttl: ttl}
}

// NewS3Resolver loads the shared AWS configuration and presigns through S3.
func NewS3Resolver(ctx context.Context, cfg Config) (*Resolver, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	loadCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	awsCfg, err := config.LoadDefaultConfig(loadCtx, opts...)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewResolver(s3.NewPresignClient(client), cfg.PresignTTL), nil
}

// Resolve returns the URL for ref. Nil or blank references resolve to "".
func (r *Resolver) Resolve(ctx context.Context, ref *string) (string, error) {
	if ref == nil || strings.TrimSpace(*ref) == "" {
		return "", nil
	}
	raw := strings.TrimSpace(*ref)

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "data":
		return raw, nil
	case "s3":
		return r.presign(ctx, u)
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// ResolveOrEmpty is Resolve with failures logged and dropped, for rendering
// paths where a missing background is acceptable.
func (r *Resolver) ResolveOrEmpty(ctx context.Context, ref *string) string {
	resolved, err := r.Resolve(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Msg("background reference not resolved")
		return ""
	}
	return resolved
}

func (r *Resolver) presign(ctx context.Context, u *url.URL) (string, error) {
	if r.presigner == nil {
		return "", ErrNoPresigner
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: s3 reference needs bucket and key", ErrUnsupportedScheme)
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", bucket, key, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Dur("ttl", r.ttl).Msg("presigned background")
	return req.URL, nil
}
