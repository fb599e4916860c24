package treatment

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/wolfman30/physioflow/pkg/logging"
)

// S3API is the subset of the S3 client used by ArtifactStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactStore keeps a copy of each rendered plan in S3. With no bucket
// configured every call is a no-op.
type ArtifactStore struct {
	bucket string
	client S3API
	logger *logging.Logger
}

func NewArtifactStore(client S3API, bucket string, logger *logging.Logger) *ArtifactStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &ArtifactStore{bucket: strings.TrimSpace(bucket), client: client, logger: logger}
}

func (s *ArtifactStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

func artifactKey(planID string) string {
	return "treatment-plans/" + planID + ".html"
}

// Put stores html under treatment-plans/{planID}.html and returns the key.
func (s *ArtifactStore) Put(ctx context.Context, planID, html string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	key := artifactKey(planID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         strings.NewReader(html),
		ContentType:  aws.String("text/html; charset=utf-8"),
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return "", fmt.Errorf("treatment: s3 put %s: %w", key, err)
	}
	s.logger.Info("treatment: archived plan artifact", "plan_id", planID, "s3_key", key)
	return key, nil
}
