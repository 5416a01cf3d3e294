package chunks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nickyhof/TreeDB/hash"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one object per chunk under <prefix>/<hash>. Puts are
// conditional on the key being absent (If-None-Match: *), so concurrent
// writers of the same chunk converge on the first copy.
type S3Store struct {
	client      S3API
	bucket      string
	prefix      string
	compression Compression
	counters
}

func NewS3Store(client S3API, bucket, prefix string, compression Compression) *S3Store {
	return &S3Store{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		compression: compression,
	}
}

func (s *S3Store) key(h hash.Hash) string {
	if s.prefix == "" {
		return h.String()
	}
	return path.Join(s.prefix, h.String())
}

func (s *S3Store) Get(ctx context.Context, h hash.Hash) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(h)
		}
		return nil, fmt.Errorf("failed to get chunk %s: %w", h, err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", h, err)
	}
	s.reads.Add(1)

	data, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", h, err)
	}
	if err := verify(h, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *S3Store) Has(ctx context.Context, h hash.Hash) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat chunk %s: %w", h, err)
}

func (s *S3Store) Put(ctx context.Context, data []byte) (hash.Hash, error) {
	h := hash.Of(data)
	payload := encodePayload(data, s.compression)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(h)),
		Body:        bytes.NewReader(payload),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		switch s3ErrorCode(err) {
		case "PreconditionFailed", "ConditionalRequestConflict":
			if ok, herr := s.Has(ctx, h); herr == nil && ok {
				s.dedups.Add(1)
				return h, nil
			}
		}
		return hash.Hash{}, fmt.Errorf("failed to put chunk %s: %w", h, err)
	}

	s.writes.Add(1)
	return h, nil
}

func (s *S3Store) Hashes(ctx context.Context, fn func(hash.Hash) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		for _, obj := range page.Contents {
			h, ok := hash.MaybeParse(path.Base(aws.ToString(obj.Key)))
			if !ok {
				continue
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, h hash.Hash) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete chunk %s: %w", h, err)
	}
	s.deletes.Add(1)
	return nil
}

func (s *S3Store) Close() error {
	return nil
}

func s3ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	switch s3ErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
