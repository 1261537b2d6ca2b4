package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

func responseError(status int, code string) error {
	return &azcore.ResponseError{
		ErrorCode:  code,
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Request:    httptest.NewRequest(http.MethodGet, "https://tables.local/", nil),
		},
	}
}

// fakeTable is an in-memory table understanding "Prop eq value" filters.
type fakeTable struct {
	mu           sync.Mutex
	rows         map[string]map[string]map[string]any
	fail         map[string]error
	adds         int
	transactions int
	updates      int
	deletes      int
	filters      []string
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]map[string]any{}, fail: map[string]error{}}
}

func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if err := f.fail["list"]; err != nil {
				return aztables.ListEntitiesResponse{}, err
			}
			prop, value := "", ""
			if opts != nil && opts.Filter != nil {
				f.filters = append(f.filters, *opts.Filter)
				prop, value = parseFilter(*opts.Filter)
			}
			var out [][]byte
			for _, part := range f.rows {
				for _, ent := range part {
					if prop != "" && fmt.Sprint(ent[prop]) != value {
						continue
					}
					data, err := sonic.Marshal(ent)
					if err != nil {
						return aztables.ListEntitiesResponse{}, err
					}
					out = append(out, data)
				}
			}
			return aztables.ListEntitiesResponse{Entities: out}, nil
		},
	})
}

func parseFilter(filter string) (string, string) {
	parts := strings.SplitN(filter, " eq ", 2)
	if len(parts) != 2 {
		return "", ""
	}
	value := parts[1]
	if strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
		value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
	}
	return parts[0], value
}

func (f *fakeTable) decode(entity []byte) (map[string]any, string, string, error) {
	var ent map[string]any
	if err := sonic.Unmarshal(entity, &ent); err != nil {
		return nil, "", "", err
	}
	pk, _ := ent["PartitionKey"].(string)
	rk, _ := ent["RowKey"].(string)
	return ent, pk, rk, nil
}

func (f *fakeTable) put(pk, rk string, ent map[string]any) {
	if f.rows[pk] == nil {
		f.rows[pk] = map[string]map[string]any{}
	}
	f.rows[pk][rk] = ent
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["add"]; err != nil {
		return aztables.AddEntityResponse{}, err
	}
	ent, pk, rk, err := f.decode(entity)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}
	if _, exists := f.rows[pk][rk]; exists {
		return aztables.AddEntityResponse{}, responseError(http.StatusConflict, "EntityAlreadyExists")
	}
	f.adds++
	f.put(pk, rk, ent)
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, _ *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["update"]; err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	patch, pk, rk, err := f.decode(entity)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	cur, ok := f.rows[pk][rk]
	if !ok {
		return aztables.UpdateEntityResponse{}, responseError(http.StatusNotFound, "ResourceNotFound")
	}
	for k, v := range patch {
		cur[k] = v
	}
	f.updates++
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["delete"]; err != nil {
		return aztables.DeleteEntityResponse{}, err
	}
	if _, ok := f.rows[pk][rk]; !ok {
		return aztables.DeleteEntityResponse{}, responseError(http.StatusNotFound, "ResourceNotFound")
	}
	delete(f.rows[pk], rk)
	f.deletes++
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, _ *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["transaction"]; err != nil {
		return aztables.TransactionResponse{}, err
	}
	staged := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		ent, pk, rk, err := f.decode(a.Entity)
		if err != nil {
			return aztables.TransactionResponse{}, err
		}
		if _, exists := f.rows[pk][rk]; exists {
			return aztables.TransactionResponse{}, responseError(http.StatusConflict, "EntityAlreadyExists")
		}
		staged = append(staged, ent)
	}
	for _, ent := range staged {
		f.put(ent["PartitionKey"].(string), ent["RowKey"].(string), ent)
	}
	f.transactions++
	return aztables.TransactionResponse{}, nil
}

func (f *fakeTable) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, part := range f.rows {
		n += len(part)
	}
	return n
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}
