package links

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/idgen"
)

const dynamoKeyAttr = "id"

// dynamoMaxKeyBytes is the largest partition key value DynamoDB accepts.
const dynamoMaxKeyBytes = 2048

// DynamoAPI is the subset of *dynamodb.Client the repository uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository stores links in a DynamoDB table with a single string
// partition key "id". Each operation is one request to the table, plus a
// consistent read after writes so callers get the stored record back.
type DynamoRepository struct {
	api    DynamoAPI
	table  string
	ids    idgen.Generator
	logger *slog.Logger
}

// NewDynamoRepository returns a repository bound to table for its lifetime.
func NewDynamoRepository(api DynamoAPI, table string, config *RepositoryConfig) *DynamoRepository {
	cfg := config.withDefaults()
	return &DynamoRepository{
		api:    api,
		table:  table,
		ids:    cfg.IDGenerator,
		logger: cfg.Logger,
	}
}

func (r *DynamoRepository) Get(ctx context.Context, id string) (Link, error) {
	return r.read(ctx, "links.dynamodb.Get", id)
}

// List scans the whole table, following LastEvaluatedKey until the last page.
func (r *DynamoRepository) List(ctx context.Context) ([]Link, error) {
	const op = "links.dynamodb.List"

	links := make([]Link, 0)
	paginator := dynamodb.NewScanPaginator(r.api, &dynamodb.ScanInput{
		TableName:      aws.String(r.table),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logFailure(ctx, op, "", err)
			return nil, errx.E(op, errx.Unavailable, err)
		}

		var batch []Link
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, errx.E(op, errx.Internal, err)
		}
		links = append(links, batch...)
	}
	return links, nil
}

func (r *DynamoRepository) Create(ctx context.Context, title, url string) (Link, error) {
	const op = "links.dynamodb.Create"

	if err := validateTitle(title); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	id, err := r.ids.Generate()
	if err != nil {
		return Link{}, errx.E(op, errx.Unavailable, err)
	}

	item, err := attributevalue.MarshalMap(Link{ID: id, Title: title, URL: url})
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(dynamoKeyAttr))).
		Build()
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return Link{}, errx.E(op, errx.Conflict, errDuplicateID(id))
		}
		r.logFailure(ctx, op, id, err)
		return Link{}, errx.E(op, errx.Unavailable, err)
	}

	return r.readBack(ctx, op, id)
}

func (r *DynamoRepository) Update(ctx context.Context, id, title, url string) (Link, error) {
	const op = "links.dynamodb.Update"

	if !storableKey(id) {
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	}

	update := expression.
		Set(expression.Name("title"), expression.Value(title)).
		Set(expression.Name("url"), expression.Value(url))
	// The condition stops UpdateItem from creating the item when it is absent.
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(dynamoKeyAttr))).
		Build()
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}

	_, err = r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
		}
		r.logFailure(ctx, op, id, err)
		return Link{}, errx.E(op, errx.Unavailable, err)
	}

	return r.readBack(ctx, op, id)
}

func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	const op = "links.dynamodb.Delete"

	if !storableKey(id) {
		return nil
	}

	_, err := r.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(id),
	})
	if err != nil {
		r.logFailure(ctx, op, id, err)
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func (r *DynamoRepository) read(ctx context.Context, op, id string) (Link, error) {
	if !storableKey(id) {
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	}

	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logFailure(ctx, op, id, err)
		return Link{}, errx.E(op, errx.Unavailable, err)
	}
	if len(out.Item) == 0 {
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	}

	var link Link
	if err := attributevalue.UnmarshalMap(out.Item, &link); err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

// readBack fetches the record a write just stored. Absence here means the
// table lost the write, which is not the caller's NotFound.
func (r *DynamoRepository) readBack(ctx context.Context, op, id string) (Link, error) {
	link, err := r.read(ctx, op, id)
	if errx.Is(err, errx.NotFound) {
		return Link{}, errx.E(op, errx.Internal, fmt.Errorf("link %q missing after write", id))
	}
	return link, err
}

// storableKey reports whether DynamoDB accepts id as a key value. Empty and
// oversized ids are rejected by the table, so no record can have them.
func storableKey(id string) bool {
	return id != "" && len(id) <= dynamoMaxKeyBytes
}

func (r *DynamoRepository) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoKeyAttr: &types.AttributeValueMemberS{Value: id},
	}
}

func (r *DynamoRepository) logFailure(ctx context.Context, op, id string, err error) {
	r.logger.ErrorContext(ctx, "dynamodb request failed",
		"op", op,
		"table", r.table,
		"id", id,
		"error", err.Error(),
	)
}
