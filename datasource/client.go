package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json2 "github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client fetches blocks from a rowserver datastore over HTTP.
type Client struct {
	BaseURL   string
	Datastore string
	HTTP      *http.Client
	Logger    zerolog.Logger
}

func NewClient(baseURL, datastore string) *Client {
	return &Client{
		BaseURL:   baseURL,
		Datastore: datastore,
		HTTP:      http.DefaultClient,
		Logger:    zerolog.Nop(),
	}
}

// GetRows performs the request on its own goroutine and reports through the
// params callbacks.
func (c *Client) GetRows(params Params) {
	go func() {
		ctx := params.Context
		if ctx == nil {
			ctx = context.Background()
		}
		result, err := c.Fetch(ctx, params.Request)
		if err != nil {
			params.Fail(err)
			return
		}
		params.Success(*result)
	}()
}

func (c *Client) endpoint() string {
	return c.BaseURL + "/v1/datastores/" + url.PathEscape(c.Datastore) + ":getRows"
}

func (c *Client) Fetch(ctx context.Context, request Request) (*Result, error) {

	requestID := uuid.NewString()
	log := c.Logger.With().Str("request_id", requestID).Str("datastore", c.Datastore).Logger()

	body, err := json2.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	log.Debug().Int("start_row", request.StartRow).Int("end_row", request.EndRow).Strs("group_keys", request.GroupKeys).Msg("get rows")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	result := &Result{}
	err = json2.UnmarshalRead(resp.Body, result)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	log.Debug().Int("rows", len(result.RowData)).Msg("got rows")

	return result, nil
}
