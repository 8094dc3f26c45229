package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"mediarepo/internal/config"
	"mediarepo/internal/store"
)

// ObjectAPI is the subset of the S3 client the backend calls.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps bytes in a bucket and metadata plus the object key in the
// store's assets table.
type S3Store struct {
	api    ObjectAPI
	bucket string
	prefix string
	st     *store.Store
}

// NewS3 builds an S3 backend. A custom endpoint targets S3-compatible servers.
func NewS3(ctx context.Context, cfg config.S3, st *store.Store) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3WithClient(client, cfg.Bucket, cfg.Prefix, st), nil
}

// NewS3WithClient wires an existing client.
func NewS3WithClient(api ObjectAPI, bucket, prefix string, st *store.Store) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/"), st: st}
}

func (s *S3Store) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return path.Join(s.prefix, id)
}

// Put uploads obj and records its metadata.
func (s *S3Store) Put(ctx context.Context, obj Object) (string, error) {
	ensureID(&obj)
	key := s.key(obj.ID)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Data),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", obj.ID, err)
	}
	if err := s.st.PutBlob(ctx, store.BlobRecord{
		ID:          obj.ID,
		OwnerID:     obj.OwnerID,
		Kind:        obj.Kind,
		Name:        obj.Name,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		ExternalKey: key,
	}); err != nil {
		return "", err
	}
	return NewRef(obj.ID), nil
}

// Get downloads the object behind ref.
func (s *S3Store) Get(ctx context.Context, ref string) (Object, error) {
	id, err := ParseRef(ref)
	if err != nil {
		return Object{}, err
	}
	rec, err := s.st.GetBlob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Object{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return Object{}, err
	}
	if rec.ExternalKey == "" {
		// Written inline before the backend switched to S3.
		return recordObject(rec, rec.Data), nil
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(rec.ExternalKey),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return Object{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return Object{}, fmt.Errorf("download blob %s: %w", id, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("read blob %s: %w", id, err)
	}
	return recordObject(rec, data), nil
}

// Delete removes the object and its metadata. Missing objects are ignored.
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	id, err := ParseRef(ref)
	if err != nil {
		return err
	}
	rec, err := s.st.GetBlob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.ExternalKey != "" {
		if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(rec.ExternalKey),
		}); err != nil && !isNoSuchKey(err) {
			return fmt.Errorf("delete blob %s: %w", id, err)
		}
	}
	return s.st.DeleteBlob(ctx, id)
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
