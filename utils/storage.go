// utils/storage.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	appconfig "league-waiver-system/config"
	"league-waiver-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// RunReportArchiver uploads one JSON report per processing run to an
// S3-compatible bucket (R2 in production). Archiving is best-effort; the
// processing transaction never waits on it.
type RunReportArchiver struct {
	client *s3.Client
	bucket string
}

// NewRunReportArchiver builds the S3 client from static credentials and a
// custom endpoint. Returns an error when the endpoint config cannot load.
func NewRunReportArchiver(ctx context.Context, cfg *appconfig.Config) (*RunReportArchiver, error) {
	awsConfig, err := awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(cfg.ArchiveRegion),
		awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.ArchiveKeyID, cfg.ArchiveSecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive storage config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.ArchiveEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
		}
	})

	return &RunReportArchiver{client: client, bucket: cfg.ArchiveBucket}, nil
}

// runReport is the archived JSON shape.
type runReport struct {
	LeagueID         int64                `json:"league_id"`
	LeagueName       string               `json:"league_name"`
	Season           int                  `json:"season"`
	Week             int                  `json:"week"`
	WindowStartAt    time.Time            `json:"window_start_at"`
	ClaimsFound      int                  `json:"claims_found"`
	ClaimsSuccessful int                  `json:"claims_successful"`
	Claims           []models.WaiverClaim `json:"claims"`
}

// ArchiveRunReport writes the run summary to
// waivers/<league-slug>/<season>/week-<week>.json. Re-runs of the same week
// overwrite the prior object, which is what we want.
func (a *RunReportArchiver) ArchiveRunReport(ctx context.Context, league *models.League, run *models.WaiverProcessingRun, claims []models.WaiverClaim) error {
	report := runReport{
		LeagueID:         league.ID,
		LeagueName:       league.Name,
		Season:           run.Season,
		Week:             run.Week,
		WindowStartAt:    run.WindowStartAt,
		ClaimsFound:      run.ClaimsFound,
		ClaimsSuccessful: run.ClaimsSuccessful,
		Claims:           claims,
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	key := fmt.Sprintf("waivers/%s-%d/%d/week-%d.json", slug.Make(league.Name), league.ID, run.Season, run.Week)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload run report %s: %w", key, err)
	}
	return nil
}
