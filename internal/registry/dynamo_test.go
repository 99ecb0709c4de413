package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/treestandk/wingman/internal/database"
	"github.com/treestandk/wingman/internal/models"
)

// fakeDynamo implements database.DynamoAPI backed by a single stored item,
// with an optional number of conditional-write failures to inject.
type fakeDynamo struct {
	item     map[string]types.AttributeValue
	failPuts int
	putCalls int
	getCalls int
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putCalls++
	if f.failPuts > 0 {
		f.failPuts--
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.item = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getCalls++
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var items []map[string]types.AttributeValue
	if f.item != nil {
		items = append(items, f.item)
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func newDynamoRegistry(fake *fakeDynamo) *Dynamo {
	client := &database.Client{
		DynamoDB:         fake,
		DeploymentsTable: "WingmanDeployments",
		AuditTable:       "WingmanAuditEvents",
	}
	return NewDynamo(database.NewDeploymentOperations(client))
}

func TestDynamoCreateSetsInitialVersion(t *testing.T) {
	fake := &fakeDynamo{}
	r := newDynamoRegistry(fake)

	if err := r.Create(context.Background(), newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var stored models.Deployment
	if err := attributevalue.UnmarshalMap(fake.item, &stored); err != nil {
		t.Fatalf("unmarshal stored item: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("stored version = %d, want 1", stored.Version)
	}
	if stored.ID != "deploy-1" {
		t.Errorf("stored id = %q, want deploy-1", stored.ID)
	}
}

func TestDynamoGetNotFound(t *testing.T) {
	r := newDynamoRegistry(&fakeDynamo{})

	_, err := r.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestDynamoUpdateRetriesOnVersionConflict(t *testing.T) {
	fake := &fakeDynamo{}
	r := newDynamoRegistry(fake)
	ctx := context.Background()

	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The next conditional write loses the race once, then succeeds.
	fake.failPuts = 1
	fake.putCalls = 0

	updated, err := r.Update(ctx, "deploy-1", func(d *models.Deployment) error {
		d.Status = models.StatusInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("status = %q, want in_progress", updated.Status)
	}
	if fake.putCalls != 2 {
		t.Errorf("put calls = %d, want 2 (one conflict, one success)", fake.putCalls)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
}

func TestDynamoUpdateGivesUpAfterRepeatedConflicts(t *testing.T) {
	fake := &fakeDynamo{}
	r := newDynamoRegistry(fake)
	ctx := context.Background()

	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fake.failPuts = 1000

	_, err := r.Update(ctx, "deploy-1", func(d *models.Deployment) error { return nil })
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Update = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "deploy-1") {
		t.Errorf("error %q should name the deployment id", err.Error())
	}
}

func TestDynamoUpdateMutatorErrorStopsWrite(t *testing.T) {
	fake := &fakeDynamo{}
	r := newDynamoRegistry(fake)
	ctx := context.Background()

	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fake.putCalls = 0

	wantErr := errors.New("not allowed")
	_, err := r.Update(ctx, "deploy-1", func(d *models.Deployment) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update = %v, want mutator error", err)
	}
	if fake.putCalls != 0 {
		t.Errorf("put calls = %d, want 0 when the mutator rejects", fake.putCalls)
	}
}
