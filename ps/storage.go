package ps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/chunks"
	"github.com/nickyhof/TreeDB/core"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type StorageOptions struct {
	// Backend is one of the Backend constants; empty means file.
	Backend     string
	Compression chunks.Compression
	// CacheSize is the number of decoded tree nodes kept in memory.
	CacheSize int
	S3        S3Options
}

type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // Optional: custom S3-compatible endpoint
	AccessKey string
	SecretKey string
}

func openChunkStore(ctx context.Context, meta billy.Filesystem, opts StorageOptions, log logrus.FieldLogger) (chunks.ChunkStore, error) {
	switch opts.Backend {
	case "", BackendFile:
		return chunks.NewFileStore(osfs.New(filepath.Join(meta.Root(), "chunks")), opts.Compression), nil

	case BackendBadger:
		bopts := badger.DefaultOptions(filepath.Join(meta.Root(), "badger")).
			WithLogger(log.WithField("component", "badger"))
		return chunks.NewBadgerStore(bopts, opts.Compression)

	case BackendS3:
		if opts.S3.Bucket == "" {
			return nil, fmt.Errorf("%w: s3 backend needs a bucket", core.ErrInvalidArgument)
		}
		client, err := NewS3Client(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return chunks.NewS3Store(client, opts.S3.Bucket, opts.S3.Prefix, opts.Compression), nil

	case BackendMemory:
		return chunks.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", core.ErrInvalidArgument, opts.Backend)
	}
}

// NewS3Client creates an S3 client from explicit options, falling back to
// the default AWS credential chain.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}
