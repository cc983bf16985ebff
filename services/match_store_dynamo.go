package services

import (
	"context"
	"errors"
	"fmt"

	"solana_game_server/models"
	"solana_game_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoMatchStore keeps match records in one table and members in a second table
// keyed by (matchPubKey, userPubKey). Re-admitting a user overwrites the same item.
type DynamoMatchStore struct {
	Dynamo       *DynamoService
	MatchesTable string
	UsersTable   string
}

func (s *DynamoMatchStore) matchesTable() string {
	if s.MatchesTable != "" {
		return s.MatchesTable
	}
	return models.MatchesTable
}

func (s *DynamoMatchStore) usersTable() string {
	if s.UsersTable != "" {
		return s.UsersTable
	}
	return models.MatchUsersTable
}

func (s *DynamoMatchStore) WriteMatchRecord(ctx context.Context, kp models.KeyPair) error {
	return s.Dynamo.PutItem(ctx, s.matchesTable(), models.MatchRecord{
		MatchPubKey: kp.PublicKey,
		SecretKey:   kp.SecretKey,
	})
}

func (s *DynamoMatchStore) WriteUserRecord(ctx context.Context, user models.UserRecord) error {
	return s.Dynamo.PutItem(ctx, s.usersTable(), user)
}

func (s *DynamoMatchStore) GetMatchRecord(ctx context.Context, matchPubKey string) (models.MatchRecord, error) {
	item, err := s.Dynamo.GetItem(ctx, s.matchesTable(), utils.StringKey("matchPubKey", matchPubKey))
	if errors.Is(err, ErrItemNotFound) {
		return models.MatchRecord{}, ErrMatchNotFound
	}
	if err != nil {
		return models.MatchRecord{}, err
	}
	record := models.MatchRecord{
		MatchPubKey: utils.ExtractString(item, "matchPubKey"),
		SecretKey:   utils.ExtractString(item, "secretKey"),
	}
	if record.MatchPubKey == "" || record.SecretKey == "" {
		return models.MatchRecord{}, fmt.Errorf("failed to parse match %s: missing key attributes", matchPubKey)
	}
	return record, nil
}

func (s *DynamoMatchStore) GetUserRecords(ctx context.Context, matchPubKey string) ([]models.UserRecord, error) {
	items, err := s.Dynamo.QueryItems(ctx, s.usersTable(),
		"#matchPubKey = :matchPubKey",
		map[string]types.AttributeValue{
			":matchPubKey": &types.AttributeValueMemberS{Value: matchPubKey},
		},
		map[string]string{"#matchPubKey": "matchPubKey"},
	)
	if err != nil {
		return nil, err
	}
	users := []models.UserRecord{}
	if err := attributevalue.UnmarshalListOfMaps(items, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users of match %s: %w", matchPubKey, err)
	}
	return users, nil
}

func (s *DynamoMatchStore) RemoveUserRecords(ctx context.Context, args models.UpdateMatchArgs) error {
	return s.deleteUsers(ctx, args.MatchPubKey, args.RemovedUsers)
}

// RemoveMatch deletes the members, then the match record.
func (s *DynamoMatchStore) RemoveMatch(ctx context.Context, matchPubKey string) error {
	users, err := s.GetUserRecords(ctx, matchPubKey)
	if err != nil {
		return err
	}
	if err := s.deleteUsers(ctx, matchPubKey, users); err != nil {
		return err
	}
	return s.Dynamo.DeleteItem(ctx, s.matchesTable(), utils.StringKey("matchPubKey", matchPubKey))
}

func (s *DynamoMatchStore) deleteUsers(ctx context.Context, matchPubKey string, users []models.UserRecord) error {
	if len(users) == 0 {
		return nil
	}
	requests := make([]types.WriteRequest, 0, len(users))
	for _, u := range users {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: utils.CompositeKey("matchPubKey", matchPubKey, "userPubKey", u.UserPubKey),
			},
		})
	}
	return s.Dynamo.BatchWriteItems(ctx, s.usersTable(), requests)
}
