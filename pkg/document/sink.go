package document

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pgendreau/aavegotchi-ptd/internal/aws"
	"github.com/pgendreau/aavegotchi-ptd/pkg/config"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

const jsonContentType = "application/json"

// Sink is where a serialized document ends up.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
	String() string
}

// ObjectAPI is the subset of the S3 client used by S3Sink.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// FileSink writes to a local path through a temp file and rename, so readers
// never observe a partial document.
type FileSink struct {
	Path string
}

func (f *FileSink) String() string {
	return f.Path
}

func (f *FileSink) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", f.Path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return errors.Wrapf(err, "failed to move document into place at %s", f.Path)
	}
	committed = true
	return nil
}

func (f *FileSink) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", f.Path)
	}
	return data, nil
}

// S3Sink stores the document as a single object.
type S3Sink struct {
	Client ObjectAPI
	Bucket string
	Key    string
}

func (s *S3Sink) String() string {
	return config.S3Scheme + s.Bucket + "/" + s.Key
}

func (s *S3Sink) Write(ctx context.Context, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awsv2.String(s.Bucket),
		Key:         awsv2.String(s.Key),
		Body:        bytes.NewReader(data),
		ContentType: awsv2.String(jsonContentType),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload document to %s", s)
	}
	return nil
}

func (s *S3Sink) Read(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awsv2.String(s.Bucket),
		Key:    awsv2.String(s.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download document from %s", s)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read document body from %s", s)
	}
	return data, nil
}

// NewSink resolves a file path or s3://bucket/key URI. For S3 the AWS config is
// loaded and the caller identity logged so operators can see which principal
// publishes the round.
func NewSink(ctx context.Context, uri string, awsRegion string, l *zap.Logger) (Sink, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("document location cannot be empty")
	}
	if !config.IsS3URI(uri) {
		return &FileSink{Path: uri}, nil
	}

	bucket, key, err := config.ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, awsRegion)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	if l != nil {
		identity, err := aws.GetCallerIdentity(ctx, awsCfg)
		if err != nil {
			l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
		} else {
			l.Sugar().Infow("Using AWS identity",
				"arn", awsv2.ToString(identity.Arn),
				"account", awsv2.ToString(identity.Account),
			)
		}
	}

	return &S3Sink{
		Client: aws.NewS3Client(awsCfg),
		Bucket: bucket,
		Key:    key,
	}, nil
}

func WriteDocument(ctx context.Context, sink Sink, doc *types.CommitmentDocument) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	return sink.Write(ctx, data)
}

func ReadDocument(ctx context.Context, sink Sink) (*types.CommitmentDocument, error) {
	data, err := sink.Read(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid document at %s", sink)
	}
	return doc, nil
}

// WriteAudit stores the audit sidecar next to the document. It is always local.
func WriteAudit(path string, audit types.AuditLog) error {
	data, err := MarshalAudit(audit)
	if err != nil {
		return err
	}
	return (&FileSink{Path: path}).Write(context.Background(), data)
}
