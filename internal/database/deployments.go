package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
)

// ErrNotFound is returned when a deployment does not exist
var ErrNotFound = errors.New("deployment not found")

// ErrVersionConflict is returned when a conditional write loses the race
// against a concurrent writer; callers re-read and retry
var ErrVersionConflict = errors.New("deployment version conflict")

// DeploymentOperations handles all DynamoDB operations for deployments
type DeploymentOperations struct {
	client    *Client
	tableName string
}

// NewDeploymentOperations creates a new DeploymentOperations instance
func NewDeploymentOperations(client *Client) *DeploymentOperations {
	return &DeploymentOperations{
		client:    client,
		tableName: client.DeploymentsTable,
	}
}

// CreateDeployment stores a brand new deployment, refusing to overwrite an
// existing id
func (do *DeploymentOperations) CreateDeployment(ctx context.Context, deployment *models.Deployment) error {
	logger.WithFields(map[string]interface{}{
		"deployment_id": deployment.ID,
		"subdomain":     deployment.Request.Subdomain,
	}).Debug("Creating deployment in DynamoDB")

	av, err := attributevalue.MarshalMap(deployment)
	if err != nil {
		return fmt.Errorf("failed to marshal deployment: %w", err)
	}

	_, err = do.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(do.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(ID)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("deployment %s already exists: %w", deployment.ID, ErrVersionConflict)
		}
		logger.WithFields(map[string]interface{}{
			"deployment_id": deployment.ID,
			"error":         err.Error(),
		}).Error("Failed to create deployment in DynamoDB")
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"deployment_id": deployment.ID,
	}).Info("Deployment created successfully in DynamoDB")

	return nil
}

// GetDeployment retrieves a deployment by id
func (do *DeploymentOperations) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	result, err := do.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(do.tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"error":         err.Error(),
		}).Error("Failed to get deployment from DynamoDB")
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}

	if len(result.Item) == 0 {
		return nil, ErrNotFound
	}

	var deployment models.Deployment
	if err := attributevalue.UnmarshalMap(result.Item, &deployment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployment: %w", err)
	}

	return &deployment, nil
}

// GetAllDeployments retrieves all deployments
func (do *DeploymentOperations) GetAllDeployments(ctx context.Context) ([]*models.Deployment, error) {
	var deployments []*models.Deployment
	var startKey map[string]types.AttributeValue

	for {
		result, err := do.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(do.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployments: %w", err)
		}

		for _, item := range result.Items {
			var deployment models.Deployment
			if err := attributevalue.UnmarshalMap(item, &deployment); err != nil {
				return nil, fmt.Errorf("failed to unmarshal deployment: %w", err)
			}
			deployments = append(deployments, &deployment)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return deployments, nil
}

// PutDeploymentVersioned writes the full record, succeeding only when the
// stored version still matches expectedVersion. The record's Version must
// already be expectedVersion+1.
func (do *DeploymentOperations) PutDeploymentVersioned(ctx context.Context, deployment *models.Deployment, expectedVersion int64) error {
	av, err := attributevalue.MarshalMap(deployment)
	if err != nil {
		return fmt.Errorf("failed to marshal deployment: %w", err)
	}

	_, err = do.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(do.tableName),
		Item:                av,
		ConditionExpression: aws.String("#version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": "Version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			logger.WithFields(map[string]interface{}{
				"deployment_id": deployment.ID,
				"version":       expectedVersion,
			}).Debug("Conditional write lost the race, will retry")
			return ErrVersionConflict
		}
		logger.WithFields(map[string]interface{}{
			"deployment_id": deployment.ID,
			"error":         err.Error(),
		}).Error("Failed to update deployment in DynamoDB")
		return fmt.Errorf("failed to update deployment: %w", err)
	}

	return nil
}
