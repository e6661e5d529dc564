// Where: cli/internal/store/appwrite/schema.go
// What: Database, collection, attribute, index and bucket endpoints.
// Why: Implement store.SchemaStore with blocking attribute and index creation.
package appwrite

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDatabase   = "create database"
	opGetDatabase      = "get database"
	opListDatabases    = "list databases"
	opCreateCollection = "create collection"
	opGetCollection    = "get collection"
	opCreateAttribute  = "create attribute"
	opGetAttribute     = "get attribute"
	opCreateIndex      = "create index"
	opGetIndex         = "get index"
	opCreateBucket     = "create bucket"
	opGetBucket        = "get bucket"
)

func (c *Client) CreateDatabase(ctx context.Context, id, name string) (store.Database, error) {
	var out store.Database
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/databases",
		body:     map[string]any{"databaseId": id, "name": name},
		op:       opCreateDatabase,
		resource: id,
	}, &out)
	return out, err
}

func (c *Client) GetDatabase(ctx context.Context, id string) (store.Database, error) {
	var out store.Database
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     apiPath("databases", id),
		op:       opGetDatabase,
		resource: id,
	}, &out)
	return out, err
}

func (c *Client) ListDatabases(ctx context.Context) ([]store.Database, error) {
	var out struct {
		Total     int              `json:"total"`
		Databases []store.Database `json:"databases"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/databases",
		op:     opListDatabases,
	}, &out)
	return out.Databases, err
}

func (c *Client) CreateCollection(ctx context.Context, databaseID string, spec schema.Collection) (store.Collection, error) {
	var out store.Collection
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   apiPath("databases", databaseID, "collections"),
		body: map[string]any{
			"collectionId":     spec.ID,
			"name":             spec.Name,
			"permissions":      store.PermissionStrings(spec.Permissions),
			"documentSecurity": spec.DocumentSecurity,
			"enabled":          true,
		},
		op:       opCreateCollection,
		resource: spec.ID,
	}, &out)
	return out, err
}

func (c *Client) GetCollection(ctx context.Context, databaseID, id string) (store.Collection, error) {
	var out store.Collection
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     apiPath("databases", databaseID, "collections", id),
		op:       opGetCollection,
		resource: id,
	}, &out)
	return out, err
}

// attributeBody builds the create payload. The BaaS rejects a default on a
// required attribute, so required attributes always send default null.
func attributeBody(spec schema.Attribute) map[string]any {
	body := map[string]any{
		"key":      spec.Key,
		"required": spec.Required,
		"array":    spec.Array,
		"default":  spec.Default,
	}
	if spec.Required {
		body["default"] = nil
	}
	if spec.Size != nil {
		body["size"] = *spec.Size
	}
	if spec.Min != nil {
		body["min"] = *spec.Min
	}
	if spec.Max != nil {
		body["max"] = *spec.Max
	}
	return body
}

// wireAttribute normalizes the BaaS type name ("double") to the schema kind.
func wireAttribute(a store.Attribute) store.Attribute {
	if a.Type == "double" {
		a.Type = string(schema.KindFloat)
	}
	return a
}

func (c *Client) CreateAttribute(ctx context.Context, databaseID, collectionID string, spec schema.Attribute) (store.Attribute, error) {
	resource := collectionID + "." + spec.Key
	var out store.Attribute
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     apiPath("databases", databaseID, "collections", collectionID, "attributes", string(spec.Kind)),
		body:     attributeBody(spec),
		op:       opCreateAttribute,
		resource: resource,
	}, &out)
	if err != nil {
		return store.Attribute{}, err
	}
	out = wireAttribute(out)
	if out.Status == store.StatusAvailable {
		return out, nil
	}
	var polled store.Attribute
	err = c.poll(ctx, opCreateAttribute, resource, func(ctx context.Context) (string, string, error) {
		polled = store.Attribute{}
		err := c.do(ctx, request{
			method:   http.MethodGet,
			path:     apiPath("databases", databaseID, "collections", collectionID, "attributes", spec.Key),
			op:       opGetAttribute,
			resource: resource,
		}, &polled)
		return polled.Status, polled.Error, err
	})
	if err != nil {
		return store.Attribute{}, err
	}
	return wireAttribute(polled), nil
}

func (c *Client) CreateIndex(ctx context.Context, databaseID, collectionID string, spec schema.Index) (store.Index, error) {
	resource := collectionID + "." + spec.Key
	body := map[string]any{
		"key":        spec.Key,
		"type":       string(spec.Kind),
		"attributes": spec.Attributes,
	}
	if len(spec.Orders) > 0 {
		body["orders"] = spec.Orders
	}
	var out store.Index
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     apiPath("databases", databaseID, "collections", collectionID, "indexes"),
		body:     body,
		op:       opCreateIndex,
		resource: resource,
	}, &out)
	if err != nil {
		return store.Index{}, err
	}
	if out.Status == store.StatusAvailable {
		return out, nil
	}
	var polled store.Index
	err = c.poll(ctx, opCreateIndex, resource, func(ctx context.Context) (string, string, error) {
		var raw struct {
			store.Index
			Error string `json:"error"`
		}
		err := c.do(ctx, request{
			method:   http.MethodGet,
			path:     apiPath("databases", databaseID, "collections", collectionID, "indexes", spec.Key),
			op:       opGetIndex,
			resource: resource,
		}, &raw)
		polled = raw.Index
		return raw.Status, raw.Error, err
	})
	if err != nil {
		return store.Index{}, err
	}
	return polled, nil
}

// poll calls check until it reports "available". A "failed" status becomes a
// validation error; running past the poll timeout is a transport error.
func (c *Client) poll(ctx context.Context, op, resource string, check func(context.Context) (string, string, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(pollCtx); err != nil {
			return c.pollError(ctx, op, resource, err)
		}
		status, detail, err := check(pollCtx)
		if err != nil {
			if isContextError(err) && ctx.Err() == nil {
				return c.pollError(ctx, op, resource, err)
			}
			return err
		}
		c.logger.Debug("poll status",
			zap.String("op", op),
			zap.String("resource", resource),
			zap.String("status", status),
			zap.Int("attempt", attempt),
		)
		switch status {
		case store.StatusAvailable:
			return nil
		case store.StatusFailed:
			if detail == "" {
				detail = "remote reported status failed"
			}
			return store.New(store.KindValidation, op, resource, detail)
		}
	}
}

func (c *Client) pollError(ctx context.Context, op, resource string, cause error) error {
	if err := ctx.Err(); err != nil {
		return store.Wrap(store.KindTransport, op, resource, err)
	}
	return store.New(store.KindTransport, op, resource,
		fmt.Sprintf("not available after %s (%v)", c.pollTimeout.Round(time.Millisecond), cause))
}

func (c *Client) CreateBucket(ctx context.Context, spec schema.Bucket) (store.Bucket, error) {
	compression := spec.Compression
	if compression == "" {
		compression = "none"
	}
	var out store.Bucket
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/buckets",
		body: map[string]any{
			"bucketId":              spec.ID,
			"name":                  spec.Name,
			"permissions":           store.PermissionStrings(spec.Permissions),
			"fileSecurity":          spec.FileSecurity,
			"enabled":               spec.Enabled,
			"maximumFileSize":       spec.MaxFileSize,
			"allowedFileExtensions": spec.AllowedExtensions,
			"compression":           compression,
			"encryption":            spec.Encryption,
			"antivirus":             spec.Antivirus,
		},
		op:       opCreateBucket,
		resource: spec.ID,
	}, &out)
	return out, err
}

func (c *Client) GetBucket(ctx context.Context, id string) (store.Bucket, error) {
	var out store.Bucket
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     apiPath("storage", "buckets", id),
		op:       opGetBucket,
		resource: id,
	}, &out)
	return out, err
}
