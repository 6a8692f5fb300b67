package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-otp-api/internal/domain"
)

// purgeDelay is how long terminal records stay queryable before the table's
// TTL reaps them.
const purgeDelay = 24 * time.Hour

// OtpRepo provides typed DynamoDB operations for the otps table.
// All status transitions are guarded with a ConditionExpression on status=new,
// so concurrent writers race safely at the single-record level.
type OtpRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOtpRepo(client *dynamodb.Client, tableName string) *OtpRepo {
	return &OtpRepo{client: client, tableName: tableName}
}

func (r *OtpRepo) Create(ctx context.Context, rec *domain.OtpRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(otp_id)"),
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("otp id collision: %w", domain.ErrConflict)
	}
	return err
}

func (r *OtpRepo) GetActive(ctx context.Context, otpID string, notBefore int64) (*domain.OtpRecord, error) {
	rec, err := r.get(ctx, otpID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.OtpStatusNew || rec.CreatedAt <= notBefore {
		return nil, fmt.Errorf("otp not addressable: %w", domain.ErrNotFound)
	}
	return rec, nil
}

func (r *OtpRepo) GetNew(ctx context.Context, otpID string) (*domain.OtpRecord, error) {
	rec, err := r.get(ctx, otpID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.OtpStatusNew {
		return nil, fmt.Errorf("otp not active: %w", domain.ErrNotFound)
	}
	return rec, nil
}

// ExpireActive queries the destination-type GSI for status=new records and
// expires each one individually with a compare-and-swap on status. Records
// that lose the race to a concurrent writer are skipped, not counted.
func (r *OtpRepo) ExpireActive(ctx context.Context, destination, otpType string) (int, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("destination-type-index"),
		KeyConditionExpression: aws.String("destination = :dest AND #t = :type"),
		FilterExpression:       aws.String("#s = :new"),
		ExpressionAttributeNames: map[string]string{
			"#t": "type",
			"#s": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dest": &types.AttributeValueMemberS{Value: destination},
			":type": &types.AttributeValueMemberS{Value: otpType},
			":new":  &types.AttributeValueMemberS{Value: domain.OtpStatusNew},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("query active otps: %w", err)
	}

	affected := 0
	for _, item := range out.Items {
		idAttr, ok := item["otp_id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		switch err := r.transition(ctx, idAttr.Value, domain.OtpStatusExpired); {
		case err == nil:
			affected++
		case errors.Is(err, domain.ErrConflict):
			// Another caller already moved this record out of new.
		default:
			return affected, err
		}
	}
	return affected, nil
}

func (r *OtpRepo) MarkUsed(ctx context.Context, otpID string) error {
	return r.transition(ctx, otpID, domain.OtpStatusUsed)
}

func (r *OtpRepo) MarkExpired(ctx context.Context, otpID string) error {
	return r.transition(ctx, otpID, domain.OtpStatusExpired)
}

// IncrementRetry bumps the retry counter while the record is still new.
func (r *OtpRepo) IncrementRetry(ctx context.Context, otpID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("otp_id", otpID),
		UpdateExpression:    aws.String("ADD #r :one"),
		ConditionExpression: aws.String("#s = :new"),
		ExpressionAttributeNames: map[string]string{
			"#r": fieldRetry,
			"#s": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":new": &types.AttributeValueMemberS{Value: domain.OtpStatusNew},
		},
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("otp no longer active: %w", domain.ErrConflict)
	}
	return err
}

func (r *OtpRepo) get(ctx context.Context, otpID string) (*domain.OtpRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("otp_id", otpID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var rec domain.OtpRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// transition moves a record out of status=new. The ConditionExpression makes
// the transition atomic per record: at most one writer wins.
func (r *OtpRepo) transition(ctx context.Context, otpID, newStatus string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:  newStatus,
		fieldPurgeAt: time.Now().Add(purgeDelay).Unix(),
	})
	if err != nil {
		return err
	}
	ue.Names["#s"] = fieldStatus
	ue.Values[":new"] = &types.AttributeValueMemberS{Value: domain.OtpStatusNew}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("otp_id", otpID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#s = :new"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("otp no longer active: %w", domain.ErrConflict)
	}
	return err
}

func isConditionalCheckFailed(err error) bool {
	var ccfe *types.ConditionalCheckFailedException
	return errors.As(err, &ccfe)
}
