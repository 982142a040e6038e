// Command export dumps the archived submissions as gzipped JSON into an S3
// bucket and rotates old exports.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sword-client/models"
	"sword-client/storage"
)

type ExportConfig struct {
	PostgresHost     string `envconfig:"DB_HOST" required:"true"`
	PostgresPort     int    `envconfig:"DB_PORT" default:"5432"`
	PostgresUser     string `envconfig:"DB_USER" required:"true"`
	PostgresPassword string `envconfig:"DB_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"DB_NAME" required:"true"`
	ExportBucket     string `envconfig:"EXPORT_S3_BUCKET" required:"true"`
	ExportEndpoint   string `envconfig:"EXPORT_S3_ENDPOINT" required:"true"`
	ExportAccessKey  string `envconfig:"EXPORT_S3_ACCESS_KEY" required:"true"`
	ExportSecretKey  string `envconfig:"EXPORT_S3_SECRET_KEY" required:"true"`
	ExportRegion     string `envconfig:"EXPORT_S3_REGION" required:"true"`
	KeepExports      int    `envconfig:"KEEP_EXPORTS" default:"4"`
}

func main() {
	log.Println("Starting submission export...")

	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Loading configuration failed: %v", err)
	}

	data, err := exportSubmissions(cfg)
	if err != nil {
		log.Fatalf("Exporting submissions failed: %v", err)
	}

	s3Client, err := createS3Client(cfg)
	if err != nil {
		log.Fatalf("Creating S3 client failed: %v", err)
	}

	fileName := fmt.Sprintf("submissions-%s.json.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := storage.UploadObject(context.TODO(), s3Client, cfg.ExportBucket, fileName, data); err != nil {
		log.Fatalf("Uploading to S3 failed: %v", err)
	}
	log.Printf("Export uploaded to s3://%s/%s", cfg.ExportBucket, fileName)

	if err := rotateExports(s3Client, cfg); err != nil {
		log.Fatalf("Rotating old exports failed: %v", err)
	}

	log.Println("Submission export finished.")
}

func exportSubmissions(cfg ExportConfig) ([]byte, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgresHost, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresPort)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	var submissions []models.ArchivedSubmission
	if err := db.Order("submitted").Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("loading archived submissions: %w", err)
	}
	log.Printf("Exporting %d archived submissions", len(submissions))

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gzipWriter).Encode(submissions); err != nil {
		return nil, fmt.Errorf("encoding submissions: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createS3Client(cfg ExportConfig) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.ExportEndpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ExportAccessKey, cfg.ExportSecretKey, "")),
		awsconfig.WithRegion(cfg.ExportRegion),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

func rotateExports(client *s3.Client, cfg ExportConfig) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.ExportBucket),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepExports {
		log.Printf("Fewer than %d exports present, no rotation needed.", cfg.KeepExports)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepExports:] {
		log.Printf("Deleting old export: %s", *obj.Key)
		_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.ExportBucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Deleting %s failed: %v", *obj.Key, err)
		}
	}

	return nil
}
