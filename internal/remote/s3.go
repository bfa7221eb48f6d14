package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/xxxsen/semindex/internal/model"
)

const deleteBatchSize = 1000

type s3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

type s3Remote struct {
	client *s3.Client
	bucket string
	prefix string
}

func init() {
	Register("s3", createS3Remote)
}

func createS3Remote(args interface{}) (Remote, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Bucket == "" || cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 bucket/secret_id/secret_key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SecretID, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Remote{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *s3Remote) List(ctx context.Context, since time.Time) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix(s.prefix)),
	})
	var result []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list remote embeddings: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			id, ok := parseObjectKey(key)
			if !ok {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			if !modified.After(since) {
				continue
			}
			result = append(result, Object{Key: key, ItemID: id, Modified: modified})
		}
	}
	return result, nil
}

func (s *s3Remote) Fetch(ctx context.Context, key string) (*model.Embedding, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get remote embedding %s: %w", key, err)
	}
	defer out.Body.Close()
	var emb model.Embedding
	if err := json.NewDecoder(out.Body).Decode(&emb); err != nil {
		return nil, fmt.Errorf("decode remote embedding %s: %w", key, err)
	}
	return &emb, nil
}

func (s *s3Remote) Upload(ctx context.Context, emb *model.Embedding) error {
	data, err := json.Marshal(emb)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(s.prefix, emb.ItemID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (s *s3Remote) Delete(ctx context.Context, itemIDs []int64) error {
	for start := 0; start < len(itemIDs); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(itemIDs))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, id := range itemIDs[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(objectKey(s.prefix, id))})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete remote embeddings: %w", err)
		}
	}
	return nil
}
