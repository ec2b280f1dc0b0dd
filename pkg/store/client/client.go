// Package client speaks the array store API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apierr "github.com/flowpool/flowpool/pkg/api/types/errors"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/store"
)

const shapeHeader = "X-Array-Shape"

type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

type Option func(*Client) *Client

func WithAPIKey(key string) Option {
	return func(c *Client) *Client {
		c.apiKey = key
		return c
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) *Client {
		c.http = hc
		return c
	}
}

// New builds a client against base, like "http://arrayd:8601".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimSuffix(base, "/"),
		http: http.DefaultClient,
	}
	for _, opt := range opts {
		c = opt(c)
	}
	return c
}

// Base reports the store origin this client points at.
func (c *Client) Base() string {
	return c.base
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, header http.Header, body []byte) (*http.Response, error) {
	target := c.base + path
	if 0 < len(query) {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if http.StatusBadRequest <= resp.StatusCode {
		defer resp.Body.Close()
		return nil, asError(resp)
	}
	return resp, nil
}

func asError(resp *http.Response) error {
	reason := ""
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := apierr.ErrorResponse{}
	if err := json.Unmarshal(raw, &message); err == nil {
		reason = message.Message.String()
	} else {
		reason = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", reason, domain.ErrMissing)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", reason, domain.ErrConflict)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", reason, store.ErrOutOfRange)
	default:
		return fmt.Errorf("array store: status %d: %s", resp.StatusCode, reason)
	}
}

func (c *Client) EnsureContainer(ctx context.Context, nodePath string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/container/"+nodePath, nil, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) CreateArray(ctx context.Context, nodePath string, shape []int, data []byte) error {
	header := http.Header{shapeHeader: []string{store.FormatShape(shape)}}
	resp, err := c.do(ctx, http.MethodPut, "/api/v1/array/"+nodePath, nil, header, data)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// PatchArray writes a block at the axis-0 offset and reports the
// array's shape after the write.
func (c *Client) PatchArray(ctx context.Context, nodePath string, offset int, extend bool, shape []int, data []byte) ([]int, error) {
	query := url.Values{"offset": []string{strconv.Itoa(offset)}}
	if extend {
		query.Set("extend", "true")
	}
	header := http.Header{shapeHeader: []string{store.FormatShape(shape)}}

	resp, err := c.do(ctx, http.MethodPatch, "/api/v1/array/"+nodePath, query, header, data)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	return store.ParseShape(resp.Header.Get(shapeHeader))
}

// ReadFull reads a slice ("1:2,0:512,0:512"; empty for everything) and
// reports its data and shape.
func (c *Client) ReadFull(ctx context.Context, nodePath string, slice string) ([]byte, []int, error) {
	query := url.Values{}
	if slice != "" {
		query.Set("slice", slice)
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/v1/array/full/"+nodePath, query, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	shape, err := store.ParseShape(resp.Header.Get(shapeHeader))
	if err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

// ArrayStructure reports the shape and dtype of an array node without
// pulling its data.
func (c *Client) ArrayStructure(ctx context.Context, nodePath string) (store.Structure, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/array/structure/"+nodePath, nil, nil, nil)
	if err != nil {
		return store.Structure{}, err
	}
	defer resp.Body.Close()

	structure := store.Structure{}
	if err := json.NewDecoder(resp.Body).Decode(&structure); err != nil {
		return store.Structure{}, fmt.Errorf("broken structure response: %w", err)
	}
	return structure, nil
}

func (c *Client) CreateTable(ctx context.Context, nodePath string, csv []byte) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/table/"+nodePath, nil, nil, csv)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) AppendPartition(ctx context.Context, nodePath string, csv []byte) error {
	resp, err := c.do(ctx, http.MethodPatch, "/api/v1/table/"+nodePath, nil, nil, csv)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) ReadTable(ctx context.Context, nodePath string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/table/"+nodePath, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
