package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"favbooks/pkg/domain"
)

const (
	attrBookID = "bookId"
	attrUserID = "userId"

	ownedCondition = "attribute_exists(bookId) AND userId = :userId"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// bookItem is the DynamoDB item layout. The table is keyed by bookId; the
// owner index is keyed by userId with createdAt as sort key.
type bookItem struct {
	UserID        string    `dynamodbav:"userId"`
	BookID        string    `dynamodbav:"bookId"`
	CreatedAt     time.Time `dynamodbav:"createdAt"`
	Name          string    `dynamodbav:"name"`
	Author        string    `dynamodbav:"author"`
	ReviewURL     string    `dynamodbav:"reviewUrl"`
	Done          bool      `dynamodbav:"done"`
	AttachmentURL *string   `dynamodbav:"attachmentUrl,omitempty"`
}

// DynamoStore implements BookStore on a DynamoDB table.
type DynamoStore struct {
	client     DynamoAPI
	table      string
	ownerIndex string
}

// NewDynamoStore binds the store to table and its owner index.
func NewDynamoStore(client DynamoAPI, table, ownerIndex string) (*DynamoStore, error) {
	if client == nil {
		return nil, errors.New("dynamo store requires a client")
	}
	if table == "" || ownerIndex == "" {
		return nil, errors.New("dynamo store requires table and owner index names")
	}
	return &DynamoStore{client: client, table: table, ownerIndex: ownerIndex}, nil
}

// GetAll queries the owner index, following pagination to the end.
func (s *DynamoStore) GetAll(ctx context.Context, ownerID string) ([]domain.Book, error) {
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(s.ownerIndex),
		KeyConditionExpression: aws.String("userId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	res := make([]domain.Book, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: query books: %w", ErrStorage, err)
		}
		var items []bookItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("%w: decode books: %w", ErrStorage, err)
		}
		for _, it := range items {
			res = append(res, it.book())
		}
	}
	return res, nil
}

// GetOne retrieves a book by ID.
func (s *DynamoStore) GetOne(ctx context.Context, bookID string) (domain.Book, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       bookKey(bookID),
	})
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("%w: get book: %w", ErrStorage, err)
	}
	if len(out.Item) == 0 {
		return domain.Book{}, false, nil
	}
	var it bookItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return domain.Book{}, false, fmt.Errorf("%w: decode book: %w", ErrStorage, err)
	}
	return it.book(), true, nil
}

// Put writes the full item.
func (s *DynamoStore) Put(ctx context.Context, b domain.Book) error {
	item, err := attributevalue.MarshalMap(itemFromBook(b))
	if err != nil {
		return fmt.Errorf("%w: encode book: %w", ErrStorage, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("%w: put book: %w", ErrStorage, err)
	}
	return nil
}

// Delete removes the item if it belongs to ownerID.
func (s *DynamoStore) Delete(ctx context.Context, ownerID, bookID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 bookKey(bookID),
		ConditionExpression: aws.String(ownedCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	return conditionalErr(err, "delete book")
}

// UpdateFields replaces name, author, reviewUrl and done.
func (s *DynamoStore) UpdateFields(ctx context.Context, ownerID, bookID string, update domain.BookUpdate) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 bookKey(bookID),
		ConditionExpression: aws.String(ownedCondition),
		UpdateExpression:    aws.String("SET #name = :name, #author = :author, #reviewUrl = :reviewUrl, #done = :done"),
		// name is a reserved word in DynamoDB expressions.
		ExpressionAttributeNames: map[string]string{
			"#name":      "name",
			"#author":    "author",
			"#reviewUrl": "reviewUrl",
			"#done":      "done",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId":    &types.AttributeValueMemberS{Value: ownerID},
			":name":      &types.AttributeValueMemberS{Value: update.Name},
			":author":    &types.AttributeValueMemberS{Value: update.Author},
			":reviewUrl": &types.AttributeValueMemberS{Value: update.ReviewURL},
			":done":      &types.AttributeValueMemberBOOL{Value: update.Done},
		},
	})
	return conditionalErr(err, "update book")
}

// SetAttachmentURL records the attachment URL on the owner's book.
func (s *DynamoStore) SetAttachmentURL(ctx context.Context, ownerID, bookID, url string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      bookKey(bookID),
		ConditionExpression:      aws.String(ownedCondition),
		UpdateExpression:         aws.String("SET #attachmentUrl = :attachmentUrl"),
		ExpressionAttributeNames: map[string]string{"#attachmentUrl": "attachmentUrl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId":        &types.AttributeValueMemberS{Value: ownerID},
			":attachmentUrl": &types.AttributeValueMemberS{Value: url},
		},
	})
	return conditionalErr(err, "set attachment url")
}

func conditionalErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func bookKey(bookID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrBookID: &types.AttributeValueMemberS{Value: bookID},
	}
}

func itemFromBook(b domain.Book) bookItem {
	return bookItem{
		UserID:        b.OwnerID,
		BookID:        b.ID,
		CreatedAt:     b.CreatedAt.UTC(),
		Name:          b.Name,
		Author:        b.Author,
		ReviewURL:     b.ReviewURL,
		Done:          b.Done,
		AttachmentURL: b.AttachmentURL,
	}
}

func (it bookItem) book() domain.Book {
	return domain.Book{
		ID:            it.BookID,
		OwnerID:       it.UserID,
		CreatedAt:     it.CreatedAt,
		Name:          it.Name,
		Author:        it.Author,
		ReviewURL:     it.ReviewURL,
		Done:          it.Done,
		AttachmentURL: it.AttachmentURL,
	}
}
