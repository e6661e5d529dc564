// Where: cli/internal/store/awsstore/documents.go
// What: Document items and their DynamoDB attribute value mapping.
// Why: Collections are plain tables; filtering and paging reuse store.Apply.
package awsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDocument = "create document"
	opGetDocument    = "get document"
	opListDocuments  = "list documents"
	opUpdateDocument = "update document"
	opDeleteDocument = "delete document"

	// sequenceKey orders documents by insertion when timestamps tie.
	sequenceKey = "$sequence"
)

// encodeValue converts a checked attribute value to a DynamoDB value.
func encodeValue(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: store.FormatTime(t)}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(t)}, nil
	case int32:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(t), 10)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(t, 10)}, nil
	case float32:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(t), 'f', -1, 32)}, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("number %v cannot be stored", t)
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	case []string:
		items := make([]types.AttributeValue, len(t))
		for i, s := range t {
			items[i] = &types.AttributeValueMemberS{Value: s}
		}
		return &types.AttributeValueMemberL{Value: items}, nil
	case []any:
		items := make([]types.AttributeValue, len(t))
		for i, item := range t {
			encoded, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = encoded
		}
		return &types.AttributeValueMemberL{Value: items}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// decodeValue converts a DynamoDB value back to the attribute's Go form.
func decodeValue(attr store.Attribute, av types.AttributeValue) (any, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberS:
		return t.Value, nil
	case *types.AttributeValueMemberBOOL:
		return t.Value, nil
	case *types.AttributeValueMemberN:
		if schema.AttributeKind(attr.Type) == schema.KindInteger {
			if n, err := strconv.Atoi(t.Value); err == nil {
				return n, nil
			}
		}
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("attribute %s holds invalid number %q", attr.Key, t.Value)
		}
		if schema.AttributeKind(attr.Type) == schema.KindInteger {
			return int(f), nil
		}
		return f, nil
	case *types.AttributeValueMemberL:
		scalar := attr
		scalar.Array = false
		items := make([]any, len(t.Value))
		for i, item := range t.Value {
			decoded, err := decodeValue(scalar, item)
			if err != nil {
				return nil, err
			}
			items[i] = decoded
		}
		return items, nil
	default:
		return nil, fmt.Errorf("attribute %s holds unsupported value %T", attr.Key, av)
	}
}

// valueKey renders an encoded value for equality checks.
func valueKey(av types.AttributeValue) string {
	switch t := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + t.Value
	case *types.AttributeValueMemberN:
		if f, err := strconv.ParseFloat(t.Value, 64); err == nil {
			return "N:" + strconv.FormatFloat(f, 'f', -1, 64)
		}
		return "N:" + t.Value
	case *types.AttributeValueMemberBOOL:
		return "B:" + strconv.FormatBool(t.Value)
	case *types.AttributeValueMemberL:
		parts := make([]string, len(t.Value))
		for i, item := range t.Value {
			parts[i] = valueKey(item)
		}
		return "L:[" + strings.Join(parts, ",") + "]"
	default:
		return "NULL"
	}
}

type collectionData struct {
	table   string
	attrs   []store.Attribute
	byKey   map[string]store.Attribute
	indexes []store.Index
}

func (s *Store) loadCollectionData(ctx context.Context, op, databaseID, collectionID string) (collectionData, error) {
	if _, err := s.GetCollection(ctx, databaseID, collectionID); err != nil {
		if store.IsNotFound(err) {
			return collectionData{}, store.NotFound(op, collectionID)
		}
		return collectionData{}, err
	}
	attrs, err := s.Attributes(ctx, databaseID, collectionID)
	if err != nil {
		return collectionData{}, err
	}
	indexes, err := s.Indexes(ctx, databaseID, collectionID)
	if err != nil {
		return collectionData{}, err
	}
	data := collectionData{
		table:   s.TableName(databaseID, collectionID),
		attrs:   attrs,
		byKey:   make(map[string]store.Attribute, len(attrs)),
		indexes: indexes,
	}
	for _, a := range attrs {
		data.byKey[a.Key] = a
	}
	return data, nil
}

func (c collectionData) encode(id string, created, updated time.Time, sequence int64, values map[string]any) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		store.FieldID:        &types.AttributeValueMemberS{Value: id},
		store.FieldCreatedAt: &types.AttributeValueMemberS{Value: store.FormatTime(created)},
		store.FieldUpdatedAt: &types.AttributeValueMemberS{Value: store.FormatTime(updated)},
		sequenceKey:          &types.AttributeValueMemberN{Value: strconv.FormatInt(sequence, 10)},
	}
	for key, v := range values {
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		item[key] = encoded
	}
	return item, nil
}

type decodedItem struct {
	doc      store.Document
	sequence int64
}

func (c collectionData) decode(databaseID, collectionID string, item map[string]types.AttributeValue) (decodedItem, error) {
	out := decodedItem{doc: store.Document{CollectionID: collectionID, DatabaseID: databaseID, Data: make(map[string]any, len(c.attrs))}}
	for _, a := range c.attrs {
		out.doc.Data[a.Key] = nil
	}
	for key, av := range item {
		switch key {
		case store.FieldID:
			if s, ok := av.(*types.AttributeValueMemberS); ok {
				out.doc.ID = s.Value
			}
			continue
		case store.FieldCreatedAt, store.FieldUpdatedAt:
			s, _ := av.(*types.AttributeValueMemberS)
			var t time.Time
			if s != nil {
				parsed, err := time.Parse(time.RFC3339Nano, s.Value)
				if err != nil {
					return decodedItem{}, fmt.Errorf("invalid timestamp %q: %w", s.Value, err)
				}
				t = parsed.UTC()
			}
			if key == store.FieldCreatedAt {
				out.doc.CreatedAt = t
			} else {
				out.doc.UpdatedAt = t
			}
			continue
		case sequenceKey:
			if n, ok := av.(*types.AttributeValueMemberN); ok {
				out.sequence, _ = strconv.ParseInt(n.Value, 10, 64)
			}
			continue
		}
		attr, ok := c.byKey[key]
		if !ok {
			continue
		}
		decoded, err := decodeValue(attr, av)
		if err != nil {
			return decodedItem{}, err
		}
		out.doc.Data[key] = decoded
	}
	return out, nil
}

// nextSequence returns a process-monotonic ordering key.
func (s *Store) nextSequence() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	n := s.Now().UnixNano()
	if n <= s.lastSeq {
		n = s.lastSeq + 1
	}
	s.lastSeq = n
	return n
}

func (s *Store) scanAll(ctx context.Context, op, databaseID, collectionID string, coll collectionData) ([]decodedItem, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(coll.table),
		ConsistentRead: aws.Bool(true),
	}
	var out []decodedItem
	for {
		resp, err := s.dynamo.Scan(ctx, input)
		if err != nil {
			return nil, classify(op, collectionID, err)
		}
		for _, item := range resp.Items {
			decoded, err := coll.decode(databaseID, collectionID, item)
			if err != nil {
				return nil, store.Wrap(store.KindTransport, op, collectionID, err)
			}
			out = append(out, decoded)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].sequence != out[j].sequence {
			return out[i].sequence < out[j].sequence
		}
		return out[i].doc.ID < out[j].doc.ID
	})
	return out, nil
}

// checkUnique rejects values colliding with another document on a unique index.
func (s *Store) checkUnique(ctx context.Context, op, databaseID, collectionID, documentID string, coll collectionData, values map[string]any) error {
	var unique []store.Index
	for _, idx := range coll.indexes {
		if schema.IndexKind(idx.Type) == schema.IndexUnique {
			unique = append(unique, idx)
		}
	}
	if len(unique) == 0 {
		return nil
	}
	existing, err := s.scanAll(ctx, op, databaseID, collectionID, coll)
	if err != nil {
		return err
	}
	for _, idx := range unique {
		want, ok, err := indexTuple(idx, values)
		if err != nil {
			return store.Wrap(store.KindValidation, op, collectionID, err)
		}
		if !ok {
			continue
		}
		for _, other := range existing {
			if other.doc.ID == documentID {
				continue
			}
			got, ok, err := indexTuple(idx, other.doc.Data)
			if err != nil {
				return store.Wrap(store.KindTransport, op, collectionID, err)
			}
			if ok && got == want {
				return store.New(store.KindConflict, op, collectionID, fmt.Sprintf("unique index %s violated", idx.Key))
			}
		}
	}
	return nil
}

// indexTuple keys the document on idx. Documents with a null indexed value
// never collide, as in SQL unique indexes.
func indexTuple(idx store.Index, values map[string]any) (string, bool, error) {
	parts := make([]string, len(idx.Attributes))
	for i, key := range idx.Attributes {
		if values[key] == nil {
			return "", false, nil
		}
		av, err := encodeValue(values[key])
		if err != nil {
			return "", false, err
		}
		parts[i] = valueKey(av)
	}
	return strings.Join(parts, "|"), true, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	coll, err := s.loadCollectionData(ctx, opCreateDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	prepared, err := store.PrepareDocument(collectionID, coll.attrs, data, false)
	if err != nil {
		return store.Document{}, err
	}
	id := s.newID(documentID)
	if err := s.checkUnique(ctx, opCreateDocument, databaseID, collectionID, id, coll, prepared); err != nil {
		return store.Document{}, err
	}
	now := s.Now().UTC()
	item, err := coll.encode(id, now, now, s.nextSequence(), prepared)
	if err != nil {
		return store.Document{}, store.Wrap(store.KindValidation, opCreateDocument, collectionID, err)
	}
	_, err = s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(coll.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": store.FieldID},
	})
	if errorCode(err) == "ConditionalCheckFailedException" {
		return store.Document{}, store.Conflict(opCreateDocument, id)
	}
	if err != nil {
		return store.Document{}, classify(opCreateDocument, collectionID, err)
	}
	decoded, err := coll.decode(databaseID, collectionID, item)
	if err != nil {
		return store.Document{}, store.Wrap(store.KindTransport, opCreateDocument, collectionID, err)
	}
	return decoded.doc, nil
}

func (s *Store) getItem(ctx context.Context, op, databaseID, collectionID, documentID string, coll collectionData) (decodedItem, error) {
	resp, err := s.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(coll.table),
		Key: map[string]types.AttributeValue{
			store.FieldID: &types.AttributeValueMemberS{Value: documentID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return decodedItem{}, classify(op, collectionID, err)
	}
	if len(resp.Item) == 0 {
		return decodedItem{}, store.NotFound(op, documentID)
	}
	decoded, err := coll.decode(databaseID, collectionID, resp.Item)
	if err != nil {
		return decodedItem{}, store.Wrap(store.KindTransport, op, collectionID, err)
	}
	return decoded, nil
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error) {
	coll, err := s.loadCollectionData(ctx, opGetDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	decoded, err := s.getItem(ctx, opGetDocument, databaseID, collectionID, documentID, coll)
	if err != nil {
		return store.Document{}, err
	}
	return decoded.doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...store.Query) (store.DocumentList, error) {
	coll, err := s.loadCollectionData(ctx, opListDocuments, databaseID, collectionID)
	if err != nil {
		return store.DocumentList{}, err
	}
	items, err := s.scanAll(ctx, opListDocuments, databaseID, collectionID, coll)
	if err != nil {
		return store.DocumentList{}, err
	}
	docs := make([]store.Document, len(items))
	for i, item := range items {
		docs[i] = item.doc
	}
	return store.Apply(docs, queries)
}

// UpdateDocument merges data into the stored document and rewrites it.
func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	coll, err := s.loadCollectionData(ctx, opUpdateDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, err
	}
	patch, err := store.PrepareDocument(collectionID, coll.attrs, data, true)
	if err != nil {
		return store.Document{}, err
	}
	current, err := s.getItem(ctx, opUpdateDocument, databaseID, collectionID, documentID, coll)
	if err != nil {
		return store.Document{}, err
	}
	merged := make(map[string]any, len(current.doc.Data)+len(patch))
	for k, v := range current.doc.Data {
		if v != nil {
			merged[k] = v
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := s.checkUnique(ctx, opUpdateDocument, databaseID, collectionID, documentID, coll, merged); err != nil {
		return store.Document{}, err
	}
	item, err := coll.encode(documentID, current.doc.CreatedAt, s.Now().UTC(), current.sequence, merged)
	if err != nil {
		return store.Document{}, store.Wrap(store.KindValidation, opUpdateDocument, collectionID, err)
	}
	_, err = s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(coll.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": store.FieldID},
	})
	if errorCode(err) == "ConditionalCheckFailedException" {
		return store.Document{}, store.NotFound(opUpdateDocument, documentID)
	}
	if err != nil {
		return store.Document{}, classify(opUpdateDocument, collectionID, err)
	}
	decoded, err := coll.decode(databaseID, collectionID, item)
	if err != nil {
		return store.Document{}, store.Wrap(store.KindTransport, opUpdateDocument, collectionID, err)
	}
	return decoded.doc, nil
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	coll, err := s.loadCollectionData(ctx, opDeleteDocument, databaseID, collectionID)
	if err != nil {
		return err
	}
	_, err = s.dynamo.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(coll.table),
		Key: map[string]types.AttributeValue{
			store.FieldID: &types.AttributeValueMemberS{Value: documentID},
		},
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": store.FieldID},
	})
	if errorCode(err) == "ConditionalCheckFailedException" {
		return store.NotFound(opDeleteDocument, documentID)
	}
	return classify(opDeleteDocument, collectionID, err)
}
