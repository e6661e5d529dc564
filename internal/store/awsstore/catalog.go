// Where: cli/internal/store/awsstore/catalog.go
// What: Catalog table items describing databases, collections, attributes, indexes and buckets.
// Why: DynamoDB tables carry no attribute schema, so the store keeps its own.
package awsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	keyPK       = "pk"
	keySK       = "sk"
	keySpec     = "spec"
	keyPosition = "position"

	skMeta = "meta"
)

func databaseKey(id string) (string, string) { return "db#" + id, skMeta }

func collectionKey(databaseID, id string) (string, string) { return "db#" + databaseID, "coll#" + id }

func attributeKey(databaseID, collectionID, key string) (string, string) {
	return collectionPK(databaseID, collectionID), "attr#" + key
}

func indexKey(databaseID, collectionID, key string) (string, string) {
	return collectionPK(databaseID, collectionID), "index#" + key
}

func collectionPK(databaseID, collectionID string) string {
	return "coll#" + databaseID + "#" + collectionID
}

func bucketKey(id string) (string, string) { return "bucket#" + id, skMeta }

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyPK: &types.AttributeValueMemberS{Value: pk},
		keySK: &types.AttributeValueMemberS{Value: sk},
	}
}

// putCatalog writes spec under (pk, sk) unless an item already exists there.
func (s *Store) putCatalog(ctx context.Context, op, resource, pk, sk string, spec any, position int) error {
	if err := s.ensureCatalog(ctx); err != nil {
		return err
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return store.Wrap(store.KindValidation, op, resource, err)
	}
	item := itemKey(pk, sk)
	item[keySpec] = &types.AttributeValueMemberS{Value: string(encoded)}
	item[keyPosition] = &types.AttributeValueMemberN{Value: strconv.Itoa(position)}
	_, err = s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.cfg.CatalogTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": keyPK,
		},
	})
	if errorCode(err) == "ConditionalCheckFailedException" {
		return store.Conflict(op, resource)
	}
	return classify(op, resource, err)
}

// getCatalog decodes the spec stored under (pk, sk) into out.
func (s *Store) getCatalog(ctx context.Context, op, resource, pk, sk string, out any) error {
	if err := s.ensureCatalog(ctx); err != nil {
		return err
	}
	resp, err := s.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.CatalogTable),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return classify(op, resource, err)
	}
	if len(resp.Item) == 0 {
		return store.NotFound(op, resource)
	}
	return decodeSpec(op, resource, resp.Item, out)
}

func (s *Store) deleteCatalog(ctx context.Context, pk, sk string) {
	_, err := s.dynamo.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.CatalogTable),
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		s.logger.Warn("catalog rollback failed")
	}
}

func decodeSpec(op, resource string, item map[string]types.AttributeValue, out any) error {
	raw, ok := item[keySpec].(*types.AttributeValueMemberS)
	if !ok {
		return store.New(store.KindTransport, op, resource, "catalog item has no spec")
	}
	if err := json.Unmarshal([]byte(raw.Value), out); err != nil {
		return store.Wrap(store.KindTransport, op, resource, fmt.Errorf("decode catalog item: %w", err))
	}
	return nil
}

type catalogItem struct {
	position int
	item     map[string]types.AttributeValue
}

// queryCatalog returns the items under pk whose sort key starts with prefix,
// ordered by position.
func (s *Store) queryCatalog(ctx context.Context, op, resource, pk, prefix string) ([]map[string]types.AttributeValue, error) {
	if err := s.ensureCatalog(ctx); err != nil {
		return nil, err
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.cfg.CatalogTable),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": keyPK,
			"#sk": keySK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ConsistentRead: aws.Bool(true),
	}
	var items []catalogItem
	for {
		resp, err := s.dynamo.Query(ctx, input)
		if err != nil {
			return nil, classify(op, resource, err)
		}
		for _, item := range resp.Items {
			pos := 0
			if n, ok := item[keyPosition].(*types.AttributeValueMemberN); ok {
				pos, _ = strconv.Atoi(n.Value)
			}
			items = append(items, catalogItem{position: pos, item: item})
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].position < items[j].position })
	out := make([]map[string]types.AttributeValue, len(items))
	for i, it := range items {
		out[i] = it.item
	}
	return out, nil
}

// Attributes returns the catalog attributes of a collection in creation order.
func (s *Store) Attributes(ctx context.Context, databaseID, collectionID string) ([]store.Attribute, error) {
	items, err := s.queryCatalog(ctx, "list attributes", collectionID, collectionPK(databaseID, collectionID), "attr#")
	if err != nil {
		return nil, err
	}
	out := make([]store.Attribute, 0, len(items))
	for _, item := range items {
		var attr store.Attribute
		if err := decodeSpec("list attributes", collectionID, item, &attr); err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	return out, nil
}

// Indexes returns the catalog indexes of a collection in creation order.
func (s *Store) Indexes(ctx context.Context, databaseID, collectionID string) ([]store.Index, error) {
	items, err := s.queryCatalog(ctx, "list indexes", collectionID, collectionPK(databaseID, collectionID), "index#")
	if err != nil {
		return nil, err
	}
	out := make([]store.Index, 0, len(items))
	for _, item := range items {
		var idx store.Index
		if err := decodeSpec("list indexes", collectionID, item, &idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}
