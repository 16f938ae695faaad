// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string

// InitR2 configures the Cloudflare R2 client used for outcome snapshot
// archiving. Leaving CLOUDFLARE_ACCOUNT_ID unset disables archiving.
func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	if accountID == "" {
		log.Println("[R2] not configured, outcome snapshots disabled")
		return nil
	}
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// ArchiveOutcomeSnapshot uploads a JSON snapshot of a game's final view to
// R2 under outcomes/<gameID>.json. Called fire-and-forget after the first
// finalize; failures are logged, never propagated — the archive is an
// audit convenience, not part of the results transaction.
func ArchiveOutcomeSnapshot(gameID string, snapshot interface{}) {
	if r2Client == nil {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("[R2] failed to marshal snapshot for game %s: %v", gameID, err)
		return
	}

	key := fmt.Sprintf("outcomes/%s.json", gameID)
	_, err = r2Client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Printf("[R2] failed to archive snapshot for game %s: %v", gameID, err)
		return
	}
	log.Printf("[R2] archived outcome snapshot %s", key)
}
