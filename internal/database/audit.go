package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// AuditOperations handles DynamoDB writes for audit events. Audit records
// are append-only; nothing in the service reads them back.
type AuditOperations struct {
	client    *Client
	tableName string
}

// NewAuditOperations creates a new AuditOperations instance
func NewAuditOperations(client *Client) *AuditOperations {
	return &AuditOperations{
		client:    client,
		tableName: client.AuditTable,
	}
}

// PutEvent stores one audit event
func (ao *AuditOperations) PutEvent(ctx context.Context, event interface{}) error {
	av, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	_, err = ao.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ao.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	return nil
}
