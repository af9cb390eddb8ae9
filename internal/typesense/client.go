package typesense

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/model"
)

const apiKeyHeader = "X-TYPESENSE-API-KEY"

// Options configures the REST client.
type Options struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a Typesense node over its REST API.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

var _ Backend = (*Client)(nil)

// NewClient builds a client for the node at opts.URL.
func NewClient(opts Options, log zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(opts.URL).
		SetHeader(apiKeyHeader, opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	c.JSONMarshal = json.Marshal
	c.JSONUnmarshal = json.Unmarshal

	return &Client{http: c, log: log}
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

func check(resp *resty.Response, err error, op, name string) error {
	if err != nil {
		return fmt.Errorf("typesense %s %q: %w", op, name, err)
	}
	if resp.IsError() {
		return &HTTPError{Op: op, Name: name, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func (c *Client) CreateCollection(ctx context.Context, schema CollectionSchema) (*Collection, error) {
	var out Collection
	resp, err := c.req(ctx).SetBody(schema).SetResult(&out).Post("/collections")
	if err := check(resp, err, "create collection", schema.Name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetrieveCollection(ctx context.Context, name string) (*Collection, error) {
	var out Collection
	resp, err := c.req(ctx).SetPathParam("name", name).SetResult(&out).Get("/collections/{name}")
	if err := check(resp, err, "retrieve collection", name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]*Collection, error) {
	var out []*Collection
	resp, err := c.req(ctx).SetResult(&out).Get("/collections")
	if err := check(resp, err, "list collections", ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateCollection(ctx context.Context, name string, update CollectionUpdate) error {
	resp, err := c.req(ctx).SetPathParam("name", name).SetBody(update).Patch("/collections/{name}")
	return check(resp, err, "update collection", name)
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	resp, err := c.req(ctx).SetPathParam("name", name).Delete("/collections/{name}")
	return check(resp, err, "delete collection", name)
}

func (c *Client) UpsertAlias(ctx context.Context, name, collection string) (*Alias, error) {
	var out Alias
	resp, err := c.req(ctx).
		SetPathParam("name", name).
		SetBody(map[string]string{"collection_name": collection}).
		SetResult(&out).
		Put("/aliases/{name}")
	if err := check(resp, err, "upsert alias", name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RetrieveAlias(ctx context.Context, name string) (*Alias, error) {
	var out Alias
	resp, err := c.req(ctx).SetPathParam("name", name).SetResult(&out).Get("/aliases/{name}")
	if err := check(resp, err, "retrieve alias", name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAliases(ctx context.Context) ([]*Alias, error) {
	var out struct {
		Aliases []*Alias `json:"aliases"`
	}
	resp, err := c.req(ctx).SetResult(&out).Get("/aliases")
	if err := check(resp, err, "list aliases", ""); err != nil {
		return nil, err
	}
	return out.Aliases, nil
}

func (c *Client) DeleteAlias(ctx context.Context, name string) error {
	resp, err := c.req(ctx).SetPathParam("name", name).Delete("/aliases/{name}")
	return check(resp, err, "delete alias", name)
}

// ImportDocuments sends docs as JSONL. The call succeeds at the HTTP level
// even when individual documents fail; inspect the results (see CheckImport).
func (c *Client) ImportDocuments(ctx context.Context, collection string, docs []model.Document, action ImportAction) ([]ImportResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if action == "" {
		action = ActionUpsert
	}

	var body bytes.Buffer
	for _, d := range docs {
		line, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode document %q: %w", d.ID(), err)
		}
		body.Write(line)
		body.WriteByte('\n')
	}

	resp, err := c.req(ctx).
		SetPathParam("name", collection).
		SetQueryParam("action", string(action)).
		SetHeader("Content-Type", "text/plain").
		SetBody(body.Bytes()).
		Post("/collections/{name}/documents/import")
	if err := check(resp, err, "import documents", collection); err != nil {
		return nil, err
	}

	results := make([]ImportResult, 0, len(docs))
	sc := bufio.NewScanner(bytes.NewReader(resp.Body()))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r ImportResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode import result for %q: %w", collection, err)
		}
		results = append(results, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read import results for %q: %w", collection, err)
	}

	c.log.Debug().Str("collection", collection).Int("documents", len(docs)).Msg("documents imported")
	return results, nil
}

func (c *Client) SearchDocuments(ctx context.Context, collection string, params SearchParams) (*SearchResult, error) {
	q := map[string]string{"q": params.Q}
	if q["q"] == "" {
		q["q"] = "*"
	}
	if params.QueryBy != "" {
		q["query_by"] = params.QueryBy
	}
	if params.FilterBy != "" {
		q["filter_by"] = params.FilterBy
	}
	if params.SortBy != "" {
		q["sort_by"] = params.SortBy
	}
	if params.IncludeFields != "" {
		q["include_fields"] = params.IncludeFields
	}
	if params.GroupBy != "" {
		q["group_by"] = params.GroupBy
	}
	if params.Page > 0 {
		q["page"] = strconv.Itoa(params.Page)
	}
	if params.PerPage > 0 {
		q["per_page"] = strconv.Itoa(params.PerPage)
	}

	var out SearchResult
	resp, err := c.req(ctx).
		SetPathParam("name", collection).
		SetQueryParams(q).
		SetResult(&out).
		Get("/collections/{name}/documents/search")
	if err := check(resp, err, "search documents", collection); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	resp, err := c.req(ctx).
		SetPathParam("name", collection).
		SetPathParam("id", id).
		Delete("/collections/{name}/documents/{id}")
	return check(resp, err, "delete document", collection)
}

func (c *Client) DeleteDocuments(ctx context.Context, collection, filterBy string) (int, error) {
	var out struct {
		NumDeleted int `json:"num_deleted"`
	}
	resp, err := c.req(ctx).
		SetPathParam("name", collection).
		SetQueryParam("filter_by", filterBy).
		SetResult(&out).
		Delete("/collections/{name}/documents")
	if err := check(resp, err, "delete documents", collection); err != nil {
		return 0, err
	}
	return out.NumDeleted, nil
}

func (c *Client) UpsertSynonym(ctx context.Context, collection, id string, synonyms []string) error {
	resp, err := c.req(ctx).
		SetPathParam("name", collection).
		SetPathParam("id", id).
		SetBody(map[string][]string{"synonyms": synonyms}).
		Put("/collections/{name}/synonyms/{id}")
	return check(resp, err, "upsert synonym", collection)
}

// Health calls GET /health and requires {"ok": true}.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := c.req(ctx).SetResult(&out).Get("/health")
	if err := check(resp, err, "health", ""); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("typesense health: not ok")
	}
	return nil
}

// HealthPing lets the client satisfy health.HealthPinger directly.
func (c *Client) HealthPing(ctx context.Context) error { return c.Health(ctx) }
