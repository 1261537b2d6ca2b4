package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"storyboard-api/domain"
)

// maxTransactionSize is the entity limit of a single table batch.
const maxTransactionSize = 100

var (
	// ErrNotFound is wrapped by RemoteError when a lookup matched nothing.
	ErrNotFound    = errors.New("record not found")
	errEmptyFilter = errors.New("filter required")
	errKeyPatch    = errors.New("key fields cannot be patched")
)

// RemoteError reports a failed call to the table backend. It is the only
// error kind returned by Collection.
type RemoteError struct {
	Collection string
	Op         string
	StatusCode int
	Code       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Collection, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFound reports whether the backend had no matching record.
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || errors.Is(e.Err, ErrNotFound)
}

func remoteErr(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	out := &RemoteError{Collection: collection, Op: op, Err: err}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		out.StatusCode = respErr.StatusCode
		out.Code = respErr.ErrorCode
	}
	return out
}

// Record is a row keyed by column name (id, project_id, text, ...).
type Record map[string]any

// Filter selects the rows whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

type tableClient interface {
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, transactionActions []aztables.TransactionAction, tableSubmitTransactionOptions *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// schema maps column names onto table properties. The partition column is
// stored as PartitionKey and id as RowKey.
type schema struct {
	partition string
	columns   map[string]string
	ints      map[string]bool
	nullable  map[string]bool
}

var (
	projectsSchema = schema{
		partition: domain.FieldUserID,
		columns: map[string]string{
			domain.FieldTitle:       "Title",
			domain.FieldDescription: "Description",
			domain.FieldRatio:       "Ratio",
		},
	}
	cardsSchema = schema{
		partition: domain.FieldProjectID,
		columns: map[string]string{
			domain.FieldText:      "Text",
			domain.FieldImageURL:  "ImageUrl",
			domain.FieldSortOrder: "SortOrder",
		},
		ints:     map[string]bool{domain.FieldSortOrder: true},
		nullable: map[string]bool{domain.FieldImageURL: true},
	}
)

func (s schema) property(field string) (string, bool) {
	switch field {
	case domain.FieldID:
		return "RowKey", true
	case s.partition:
		return "PartitionKey", true
	}
	p, ok := s.columns[field]
	return p, ok
}

// Collection is a filtered CRUD accessor over one table. Every call is a
// single attempt; failures come back as *RemoteError.
type Collection struct {
	name   string
	client tableClient
	schema schema
	newID  func() string
}

func newCollection(name string, client tableClient, s schema) *Collection {
	return &Collection{name: name, client: client, schema: s, newID: uuid.NewString}
}

// Name returns the collection name used in errors and logs.
func (c *Collection) Name() string { return c.name }

func (c *Collection) filterString(f Filter) (string, error) {
	prop, ok := c.schema.property(f.Field)
	if !ok {
		return "", fmt.Errorf("unknown field %q", f.Field)
	}
	switch v := f.Value.(type) {
	case string:
		return prop + " eq '" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case int:
		return prop + " eq " + strconv.Itoa(v), nil
	case bool:
		return prop + " eq " + strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported filter value %T", f.Value)
	}
}

func (c *Collection) list(ctx context.Context, f Filter) ([]map[string]any, error) {
	opts := &aztables.ListEntitiesOptions{}
	if f.Field != "" {
		filter, err := c.filterString(f)
		if err != nil {
			return nil, err
		}
		opts.Filter = &filter
	}
	pager := c.client.NewListEntitiesPager(opts)
	rows := []map[string]any{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent map[string]any
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, ent)
		}
	}
	return rows, nil
}

// Select returns every record matching f. The zero Filter matches all rows.
func (c *Collection) Select(ctx context.Context, f Filter) ([]Record, error) {
	rows, err := c.list(ctx, f)
	if err != nil {
		return nil, remoteErr(c.name, "select", err)
	}
	out := make([]Record, 0, len(rows))
	for _, ent := range rows {
		out = append(out, c.fromEntity(ent))
	}
	return out, nil
}

// Insert stores records under fresh identifiers and returns them as stored.
// Several records sharing a partition are written in one transaction.
func (c *Collection) Insert(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	out := make([]Record, len(records))
	payloads := make([][]byte, len(records))
	for i, r := range records {
		rec := make(Record, len(r)+1)
		for k, v := range r {
			rec[k] = v
		}
		rec[domain.FieldID] = c.newID()
		payload, err := c.toEntity(rec)
		if err != nil {
			return nil, remoteErr(c.name, "insert", err)
		}
		out[i] = rec
		payloads[i] = payload
	}

	if len(records) > 1 && len(records) <= maxTransactionSize && samePartition(out, c.schema.partition) {
		actions := make([]aztables.TransactionAction, len(payloads))
		for i, p := range payloads {
			actions[i] = aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: p}
		}
		if _, err := c.client.SubmitTransaction(ctx, actions, nil); err != nil {
			return nil, remoteErr(c.name, "insert", err)
		}
		return out, nil
	}

	for _, p := range payloads {
		if _, err := c.client.AddEntity(ctx, p, nil); err != nil {
			return nil, remoteErr(c.name, "insert", err)
		}
	}
	return out, nil
}

// Update merges patch into every record matching f.
func (c *Collection) Update(ctx context.Context, f Filter, patch Record) error {
	if f.Field == "" {
		return remoteErr(c.name, "update", errEmptyFilter)
	}
	for field := range patch {
		if field == domain.FieldID || field == c.schema.partition {
			return remoteErr(c.name, "update", errKeyPatch)
		}
	}
	rows, err := c.list(ctx, f)
	if err != nil {
		return remoteErr(c.name, "update", err)
	}
	for _, ent := range rows {
		rec := Record{domain.FieldID: ent["RowKey"], c.schema.partition: ent["PartitionKey"]}
		for k, v := range patch {
			rec[k] = v
		}
		payload, err := c.toEntity(rec)
		if err != nil {
			return remoteErr(c.name, "update", err)
		}
		etag := azcore.ETagAny
		if _, err := c.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge}); err != nil {
			return remoteErr(c.name, "update", err)
		}
	}
	return nil
}

// DeleteKey removes the record with the given partition value and id. A
// missing record is not an error.
func (c *Collection) DeleteKey(ctx context.Context, partition, id string) error {
	if partition == "" || id == "" {
		return remoteErr(c.name, "delete", errEmptyFilter)
	}
	if _, err := c.client.DeleteEntity(ctx, partition, id, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return remoteErr(c.name, "delete", err)
	}
	return nil
}

// Delete removes every record matching f. Rows that vanished in between are
// ignored.
func (c *Collection) Delete(ctx context.Context, f Filter) error {
	if f.Field == "" {
		return remoteErr(c.name, "delete", errEmptyFilter)
	}
	rows, err := c.list(ctx, f)
	if err != nil {
		return remoteErr(c.name, "delete", err)
	}
	for _, ent := range rows {
		pk, _ := ent["PartitionKey"].(string)
		rk, _ := ent["RowKey"].(string)
		if _, err := c.client.DeleteEntity(ctx, pk, rk, nil); err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
				continue
			}
			return remoteErr(c.name, "delete", err)
		}
	}
	return nil
}

func (c *Collection) toEntity(r Record) ([]byte, error) {
	ent := make(map[string]any, len(r)+2)
	for field, v := range r {
		prop, ok := c.schema.property(field)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", field)
		}
		if c.schema.nullable[field] {
			v = nullableString(v)
		}
		if c.schema.ints[field] {
			n, ok := toInt(v)
			if !ok {
				return nil, fmt.Errorf("field %q must be an integer", field)
			}
			v = n
			ent[prop+"@odata.type"] = "Edm.Int32"
		}
		ent[prop] = v
	}
	if _, ok := ent["PartitionKey"].(string); !ok {
		return nil, fmt.Errorf("missing %s", c.schema.partition)
	}
	if _, ok := ent["RowKey"].(string); !ok {
		return nil, fmt.Errorf("missing %s", domain.FieldID)
	}
	return sonic.Marshal(ent)
}

func (c *Collection) fromEntity(ent map[string]any) Record {
	rec := Record{
		domain.FieldID:     ent["RowKey"],
		c.schema.partition: ent["PartitionKey"],
	}
	for field, prop := range c.schema.columns {
		v, ok := ent[prop]
		switch {
		case c.schema.nullable[field]:
			if s, _ := v.(string); s != "" {
				rec[field] = s
			} else {
				rec[field] = nil
			}
		case c.schema.ints[field]:
			n, _ := toInt(v)
			rec[field] = n
		case ok:
			rec[field] = v
		}
	}
	return rec
}

func samePartition(records []Record, field string) bool {
	for _, r := range records[1:] {
		if r[field] != records[0][field] {
			return false
		}
	}
	return true
}

// nullableString maps a nil value onto the empty string; tables have no
// null column values.
func nullableString(v any) any {
	switch s := v.(type) {
	case nil:
		return ""
	case *string:
		if s == nil {
			return ""
		}
		return *s
	}
	return v
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
