package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"lanos_go/config"
	"lanos_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveService uploads admin exports to S3 and records them in the
// export_archives table.
type ArchiveService struct {
	client ObjectPutter
	bucket string
	region string
	db     *gorm.DB
	now    func() time.Time
}

// NewArchiveService loads the default AWS credential chain.
func NewArchiveService(ctx context.Context, cfg *config.Config, db *gorm.DB) (*ArchiveService, error) {
	if cfg.S3BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME not configured")
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewArchiveServiceWithClient(s3.NewFromConfig(awsConf), cfg.S3BucketName, cfg.AWSRegion, db), nil
}

func NewArchiveServiceWithClient(client ObjectPutter, bucket, region string, db *gorm.DB) *ArchiveService {
	return &ArchiveService{client: client, bucket: bucket, region: region, db: db, now: time.Now}
}

// Upload stores an xlsx export and returns its archive record.
func (a *ArchiveService) Upload(ctx context.Context, fileName string, data []byte, records int, requestedBy string) (*models.ExportArchive, error) {
	now := a.now().UTC()
	key := fmt.Sprintf("exports/registrations/%d/%02d/%02d/%s-%s",
		now.Year(), now.Month(), now.Day(), uuid.New().String()[:8], fileName)

	archive := &models.ExportArchive{
		FileName:    fileName,
		S3Key:       key,
		RecordCount: records,
		FileSize:    int64(len(data)),
		RequestedBy: requestedBy,
		Status:      "completed",
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(xlsxContentType),
	})
	if err != nil {
		archive.Status = "failed"
		archive.Error = err.Error()
	}

	if a.db != nil {
		if dbErr := a.db.WithContext(ctx).Create(archive).Error; dbErr != nil {
			logrus.WithError(dbErr).Warn("failed to record export archive")
		}
	}
	if err != nil {
		return archive, fmt.Errorf("failed to upload to S3: %w", err)
	}
	return archive, nil
}

// URL returns the object URL of key.
func (a *ArchiveService) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
}
