package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"solana_game_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3PutAPI is the subset of *s3.Client used to archive outcomes.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3PresignAPI is the subset of *s3.PresignClient used to share outcomes.
type S3PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3OutcomeArchive writes settled match results as JSON objects and hands out
// presigned read URLs for them.
type S3OutcomeArchive struct {
	Client    S3PutAPI
	Presigner S3PresignAPI
	Bucket    string
	Prefix    string
	Expiry    time.Duration
	Logger    *slog.Logger
}

// NewS3OutcomeArchive builds an archive from the default AWS credential chain.
func NewS3OutcomeArchive(ctx context.Context, region, bucket, prefix string, expiry time.Duration) (*S3OutcomeArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3OutcomeArchive{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
		Prefix:    prefix,
		Expiry:    expiry,
	}, nil
}

// OutcomeKey returns the object key holding the outcome of matchPubKey.
func (a *S3OutcomeArchive) OutcomeKey(matchPubKey string) string {
	return a.Prefix + matchPubKey + ".json"
}

// PutOutcome uploads result, replacing any earlier outcome for the same match.
func (a *S3OutcomeArchive) PutOutcome(ctx context.Context, result models.EndGameResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	key := a.OutcomeKey(result.MatchPubKey)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload outcome %s: %w", key, err)
	}
	if a.Logger != nil {
		a.Logger.Info("✅ Outcome archived", "bucket", a.Bucket, "key", key)
	}
	return nil
}

// OutcomeURL returns a presigned URL for reading the archived outcome of matchPubKey.
func (a *S3OutcomeArchive) OutcomeURL(ctx context.Context, matchPubKey string) (string, error) {
	expiry := a.Expiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	presigned, err := a.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(a.OutcomeKey(matchPubKey)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign outcome of %s: %w", matchPubKey, err)
	}
	return presigned.URL, nil
}
