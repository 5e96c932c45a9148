package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pubmed-loader/config"
)

// ObjectPutter ist der Teil des S3-Clients, den das Archiv braucht.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactArchive spiegelt fertige Artefakte in einen S3-kompatiblen Bucket.
type ArtifactArchive struct {
	Client  ObjectPutter
	Bucket  string
	Prefix  string
	BaseURL string
}

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
// Ohne ARTIFACT_S3_URL wird der AWS-Standardendpunkt der Region verwendet.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.ArtifactS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ArtifactS3Key, cfg.ArtifactS3Secret, "")),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArtifactS3URL != "" {
			o.BaseEndpoint = aws.String(cfg.ArtifactS3URL)
			o.UsePathStyle = true
		}
	}), nil
}

// NewArtifactArchive erstellt das Archiv aus der Konfiguration.
func NewArtifactArchive(ctx context.Context, cfg *config.Config) (*ArtifactArchive, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	baseURL := cfg.ArtifactS3URL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.ArtifactS3Region)
	}
	return &ArtifactArchive{
		Client:  client,
		Bucket:  cfg.ArtifactS3Bucket,
		Prefix:  cfg.ArtifactS3Prefix,
		BaseURL: baseURL,
	}, nil
}

// Key liefert den Objektschlüssel eines Artefakts: <prefix>/<jobID>/<name>.
func (a *ArtifactArchive) Key(jobID, name string) string {
	return path.Join(a.Prefix, jobID, name)
}

// Put lädt ein Artefakt hoch und gibt den Link darauf zurück.
func (a *ArtifactArchive) Put(ctx context.Context, jobID, name string, data []byte) (string, error) {
	key := a.Key(jobID, name)
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.Bucket, key, err)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.BaseURL, "/"), a.Bucket, key), nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
