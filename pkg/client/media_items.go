package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/gphotos-client/pkg/pagination"
)

const (
	// DefaultPageSize is the server default for media item pages.
	DefaultPageSize = 25

	// MaxMediaItemPageSize is the largest page mediaItems endpoints accept.
	MaxMediaItemPageSize = 100

	// DefaultAlbumPageSize is the server default for album list pages.
	DefaultAlbumPageSize = 20

	// MaxAlbumPageSize is the largest page albums endpoints accept.
	MaxAlbumPageSize = 50

	// MaxBatchCreate is the largest number of items per batchCreate call.
	MaxBatchCreate = 50
)

// SearchFilters narrows mediaItems:search. Each filter is passed through as
// the JSON object the API documents.
type SearchFilters struct {
	DateFilter               json.RawMessage `json:"dateFilter,omitempty"`
	ContentFilter            json.RawMessage `json:"contentFilter,omitempty"`
	MediaTypeFilter          json.RawMessage `json:"mediaTypeFilter,omitempty"`
	FeatureFilter            json.RawMessage `json:"featureFilter,omitempty"`
	IncludeArchivedMedia     bool            `json:"includeArchivedMedia,omitempty"`
	ExcludeNonAppCreatedData bool            `json:"excludeNonAppCreatedData,omitempty"`
}

// SearchRequest describes a mediaItems:search query.
type SearchRequest struct {
	// AlbumID lists the items of one album. Cannot be combined with Filters.
	AlbumID string

	// PageSize is the maximum number of items per page (1..100, default 25).
	PageSize int

	// Filters applied to the library. Cannot be combined with AlbumID.
	Filters *SearchFilters

	// OrderBy sorts results, e.g. "MediaMetadata.creation_time desc".
	// Only valid together with a date filter.
	OrderBy string
}

// Validate applies the API's parameter rules.
func (r SearchRequest) Validate() error {
	if r.AlbumID != "" && r.Filters != nil {
		return invalidf("'albumId' cannot be set in conjunction with 'filters'")
	}
	if r.PageSize < 0 || r.PageSize > MaxMediaItemPageSize {
		return invalidf("'pageSize' must be a positive integer, maximum value: %d (got %d)", MaxMediaItemPageSize, r.PageSize)
	}
	if r.OrderBy != "" && (r.Filters == nil || len(r.Filters.DateFilter) == 0) {
		return invalidf("the 'orderBy' field only works when a 'dateFilter' is used")
	}
	return nil
}

type searchBody struct {
	AlbumID   string         `json:"albumId,omitempty"`
	PageSize  int            `json:"pageSize"`
	PageToken string         `json:"pageToken,omitempty"`
	Filters   *SearchFilters `json:"filters,omitempty"`
	OrderBy   string         `json:"orderBy,omitempty"`
}

type mediaItemsPage struct {
	MediaItems    []json.RawMessage `json:"mediaItems"`
	NextPageToken string            `json:"nextPageToken"`
}

// SearchPages returns the page-fetch capability for a mediaItems:search
// query. The request is validated up front.
func (c *Client) SearchPages(req SearchRequest) (pagination.PageFetcher[json.RawMessage], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}

	return pagination.PageFetcherFunc[json.RawMessage](func(ctx context.Context, token string) (pagination.Page[json.RawMessage], error) {
		body := searchBody{
			AlbumID:   req.AlbumID,
			PageSize:  req.PageSize,
			PageToken: token,
			Filters:   req.Filters,
			OrderBy:   req.OrderBy,
		}

		var page mediaItemsPage
		if err := c.doJSON(ctx, http.MethodPost, "/mediaItems:search", "mediaItems:search", nil, body, &page); err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		return pagination.Page[json.RawMessage]{Items: page.MediaItems, NextToken: page.NextPageToken}, nil
	}), nil
}

// ListPages returns the page-fetch capability for listing the whole library.
func (c *Client) ListPages(pageSize int) (pagination.PageFetcher[json.RawMessage], error) {
	if pageSize < 0 || pageSize > MaxMediaItemPageSize {
		return nil, invalidf("pageSize must be between 1 and %d (got %d)", MaxMediaItemPageSize, pageSize)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	return pagination.PageFetcherFunc[json.RawMessage](func(ctx context.Context, token string) (pagination.Page[json.RawMessage], error) {
		query := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
		if token != "" {
			query.Set("pageToken", token)
		}

		var page mediaItemsPage
		if err := c.doJSON(ctx, http.MethodGet, "/mediaItems", "mediaItems.list", query, nil, &page); err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}
		return pagination.Page[json.RawMessage]{Items: page.MediaItems, NextToken: page.NextPageToken}, nil
	}), nil
}

// SearchAll runs a search lazily, yielding raw media item records.
func (c *Client) SearchAll(req SearchRequest, opts ...pagination.Option) (*pagination.Iterator[json.RawMessage], error) {
	fetcher, err := c.SearchPages(req)
	if err != nil {
		return nil, err
	}

	opts = append([]pagination.Option{
		pagination.WithName("mediaItems:search"),
		pagination.WithLogger(c.logger),
	}, opts...)
	return pagination.SearchAll(fetcher, pagination.Identity[json.RawMessage], opts...)
}

// GetMediaItem fetches one media item.
func (c *Client) GetMediaItem(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, invalidf("media item id is required")
	}

	var item json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/mediaItems/"+url.PathEscape(id), "mediaItems.get", nil, nil, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// BatchGetMediaItems fetches many media items. Ids are sent in chunks of at
// most 50; the returned mediaItemResults keep the order of ids.
func (c *Client) BatchGetMediaItems(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	fetcher := pagination.ChunkFetcherFunc[json.RawMessage](func(ctx context.Context, chunk []string) ([]json.RawMessage, error) {
		query := url.Values{"mediaItemIds": chunk}

		var resp struct {
			MediaItemResults []json.RawMessage `json:"mediaItemResults"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/mediaItems:batchGet", "mediaItems:batchGet", query, nil, &resp); err != nil {
			return nil, err
		}
		return resp.MediaItemResults, nil
	})

	return pagination.NewBatchFetcher[json.RawMessage](fetcher, pagination.DefaultConfig()).FetchAll(ctx, ids)
}

// NewMediaItem describes an uploaded item to create in the library.
type NewMediaItem struct {
	UploadToken string
	FileName    string
	Description string
}

func (n NewMediaItem) body() map[string]any {
	simple := map[string]string{"uploadToken": n.UploadToken}
	if n.FileName != "" {
		simple["fileName"] = n.FileName
	}
	item := map[string]any{"simpleMediaItem": simple}
	if n.Description != "" {
		item["description"] = n.Description
	}
	return item
}

// BatchCreateMediaItems turns upload tokens into media items, optionally
// adding them to albumID. At most 50 items per call.
func (c *Client) BatchCreateMediaItems(ctx context.Context, albumID string, items []NewMediaItem, position *AlbumPosition) ([]json.RawMessage, error) {
	if len(items) == 0 {
		return nil, invalidf("at least one media item is required")
	}
	if len(items) > MaxBatchCreate {
		return nil, invalidf("at most %d media items per batchCreate (got %d)", MaxBatchCreate, len(items))
	}

	newItems := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if item.UploadToken == "" {
			return nil, invalidf("upload token is required")
		}
		newItems = append(newItems, item.body())
	}

	body := map[string]any{"newMediaItems": newItems}
	if albumID != "" {
		body["albumId"] = albumID
	}
	if position != nil {
		if err := position.Validate(); err != nil {
			return nil, err
		}
		body["albumPosition"] = position
	}

	var resp struct {
		NewMediaItemResults []json.RawMessage `json:"newMediaItemResults"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/mediaItems:batchCreate", "mediaItems:batchCreate", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.NewMediaItemResults, nil
}

// UpdateField names a patchable media item field.
type UpdateField string

// FieldDescription is the only field the API allows to patch.
const FieldDescription UpdateField = "description"

// PatchMediaItem updates one field of a media item.
func (c *Client) PatchMediaItem(ctx context.Context, id string, field UpdateField, value string) (json.RawMessage, error) {
	if id == "" {
		return nil, invalidf("media item id is required")
	}
	if field != FieldDescription {
		return nil, invalidf("unsupported update field %q", field)
	}

	query := url.Values{"updateMask": {string(field)}}
	body := map[string]string{string(field): value}

	var item json.RawMessage
	if err := c.doJSON(ctx, http.MethodPatch, "/mediaItems/"+url.PathEscape(id), "mediaItems.patch", query, body, &item); err != nil {
		return nil, err
	}
	return item, nil
}
