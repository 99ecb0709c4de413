package database

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	appConfig "github.com/treestandk/wingman/internal/config"
)

// Config holds the DynamoDB configuration
type Config struct {
	DeploymentsTable string
	AuditTable       string
	Region           string
	Endpoint         string // non-empty for DynamoDB Local
}

// DynamoAPI is the subset of the DynamoDB client used by this package.
// Tests substitute a fake.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Client wraps the DynamoDB client and table names
type Client struct {
	DynamoDB         DynamoAPI
	DeploymentsTable string
	AuditTable       string
}

// NewConfig creates a new database configuration from the application config
func NewConfig(appCfg *appConfig.Config) *Config {
	return &Config{
		DeploymentsTable: appCfg.DeploymentsTable,
		AuditTable:       appCfg.AuditTable,
		Region:           appCfg.AWSRegion,
		Endpoint:         appCfg.DynamoDBEndpoint,
	}
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	// Load AWS SDK config
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	client := &Client{
		DynamoDB:         dynamoClient,
		DeploymentsTable: cfg.DeploymentsTable,
		AuditTable:       cfg.AuditTable,
	}

	// Verify tables exist; startup continues either way so operators can
	// create them after the fact
	for _, table := range []string{cfg.DeploymentsTable, cfg.AuditTable} {
		if err := ensureTableExists(ctx, client.DynamoDB, table); err != nil {
			log.Printf("Warning: Could not verify table existence: %v", err)
		}
	}

	return client, nil
}

// ensureTableExists checks if the DynamoDB table exists
func ensureTableExists(ctx context.Context, client DynamoAPI, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})

	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", tableName, err)
	}

	log.Printf("DynamoDB table '%s' verified successfully", tableName)
	return nil
}
