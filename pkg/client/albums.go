package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/gphotos-client/pkg/pagination"
)

// MaxAlbumBatch is the largest number of media items per album batch call.
const MaxAlbumBatch = 50

// PositionType is where a new item lands in an album.
type PositionType string

// Album positions.
const (
	PositionFirstInAlbum        PositionType = "FIRST_IN_ALBUM"
	PositionLastInAlbum         PositionType = "LAST_IN_ALBUM"
	PositionAfterMediaItem      PositionType = "AFTER_MEDIA_ITEM"
	PositionAfterEnrichmentItem PositionType = "AFTER_ENRICHMENT_ITEM"
)

// AlbumPosition places media or enrichments inside an album.
type AlbumPosition struct {
	Position                 PositionType `json:"position"`
	RelativeMediaItemID      string       `json:"relativeMediaItemId,omitempty"`
	RelativeEnrichmentItemID string       `json:"relativeEnrichmentItemId,omitempty"`
}

// Validate checks that relative positions name their anchor.
func (p AlbumPosition) Validate() error {
	switch p.Position {
	case PositionFirstInAlbum, PositionLastInAlbum:
		return nil
	case PositionAfterMediaItem:
		if p.RelativeMediaItemID == "" {
			return invalidf("AFTER_MEDIA_ITEM requires a relative media item id")
		}
		return nil
	case PositionAfterEnrichmentItem:
		if p.RelativeEnrichmentItemID == "" {
			return invalidf("AFTER_ENRICHMENT_ITEM requires a relative enrichment item id")
		}
		return nil
	default:
		return invalidf("unknown album position %q", p.Position)
	}
}

// EnrichmentType is the kind of enrichment added to an album.
type EnrichmentType string

// Enrichment kinds.
const (
	EnrichmentText     EnrichmentType = "textEnrichment"
	EnrichmentLocation EnrichmentType = "locationEnrichment"
	EnrichmentMap      EnrichmentType = "mapEnrichment"
)

type albumsPage struct {
	Albums        []json.RawMessage `json:"albums"`
	SharedAlbums  []json.RawMessage `json:"sharedAlbums"`
	NextPageToken string            `json:"nextPageToken"`
}

// AlbumPages returns the page-fetch capability for the albums list.
func (c *Client) AlbumPages(pageSize int, excludeNonAppCreated bool) (pagination.PageFetcher[json.RawMessage], error) {
	return c.albumPages("/albums", "albums.list", pageSize, excludeNonAppCreated)
}

// SharedAlbumPages returns the page-fetch capability for the shared albums list.
func (c *Client) SharedAlbumPages(pageSize int, excludeNonAppCreated bool) (pagination.PageFetcher[json.RawMessage], error) {
	return c.albumPages("/sharedAlbums", "sharedAlbums.list", pageSize, excludeNonAppCreated)
}

func (c *Client) albumPages(path, endpoint string, pageSize int, excludeNonAppCreated bool) (pagination.PageFetcher[json.RawMessage], error) {
	if pageSize < 0 || pageSize > MaxAlbumPageSize {
		return nil, invalidf("pageSize must be between 1 and %d (got %d)", MaxAlbumPageSize, pageSize)
	}
	if pageSize == 0 {
		pageSize = DefaultAlbumPageSize
	}

	return pagination.PageFetcherFunc[json.RawMessage](func(ctx context.Context, token string) (pagination.Page[json.RawMessage], error) {
		query := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
		if token != "" {
			query.Set("pageToken", token)
		}
		if excludeNonAppCreated {
			query.Set("excludeNonAppCreatedData", "true")
		}

		var page albumsPage
		if err := c.doJSON(ctx, http.MethodGet, path, endpoint, query, nil, &page); err != nil {
			return pagination.Page[json.RawMessage]{}, err
		}

		items := page.Albums
		if items == nil {
			items = page.SharedAlbums
		}
		return pagination.Page[json.RawMessage]{Items: items, NextToken: page.NextPageToken}, nil
	}), nil
}

// CreateAlbum creates an app-owned album.
func (c *Client) CreateAlbum(ctx context.Context, title string) (json.RawMessage, error) {
	if title == "" {
		return nil, invalidf("album title is required")
	}

	body := map[string]any{"album": map[string]string{"title": title}}

	var album json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/albums", "albums.create", nil, body, &album); err != nil {
		return nil, err
	}
	return album, nil
}

// GetAlbum fetches one album.
func (c *Client) GetAlbum(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, invalidf("album id is required")
	}

	var album json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/albums/"+url.PathEscape(id), "albums.get", nil, nil, &album); err != nil {
		return nil, err
	}
	return album, nil
}

// ShareAlbum shares an app-created album and returns its shareInfo.
func (c *Client) ShareAlbum(ctx context.Context, id string, collaborative, commentable bool) (json.RawMessage, error) {
	if id == "" {
		return nil, invalidf("album id is required")
	}

	body := map[string]any{
		"sharedAlbumOptions": map[string]bool{
			"isCollaborative": collaborative,
			"isCommentable":   commentable,
		},
	}

	var resp struct {
		ShareInfo json.RawMessage `json:"shareInfo"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/albums/"+url.PathEscape(id)+":share", "albums.share", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.ShareInfo, nil
}

// UnshareAlbum makes a shared album private again.
func (c *Client) UnshareAlbum(ctx context.Context, id string) error {
	if id == "" {
		return invalidf("album id is required")
	}
	return c.doJSON(ctx, http.MethodPost, "/albums/"+url.PathEscape(id)+":unshare", "albums.unshare", nil, struct{}{}, nil)
}

// AddEnrichment adds a text, location or map enrichment to an album and
// returns the new enrichment item id. data is the enrichment object as the
// API documents it for kind.
func (c *Client) AddEnrichment(ctx context.Context, albumID string, kind EnrichmentType, data any, position AlbumPosition) (string, error) {
	if albumID == "" {
		return "", invalidf("album id is required")
	}
	switch kind {
	case EnrichmentText, EnrichmentLocation, EnrichmentMap:
	default:
		return "", invalidf("unknown enrichment type %q", kind)
	}
	if err := position.Validate(); err != nil {
		return "", err
	}

	body := map[string]any{
		"newEnrichmentItem": map[string]any{string(kind): data},
		"albumPosition":     position,
	}

	var resp struct {
		EnrichmentItem struct {
			ID string `json:"id"`
		} `json:"enrichmentItem"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/albums/"+url.PathEscape(albumID)+":addEnrichment", "albums.addEnrichment", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.EnrichmentItem.ID, nil
}

// BatchAddMediaItems adds existing media items to an album, 50 per request.
func (c *Client) BatchAddMediaItems(ctx context.Context, albumID string, mediaItemIDs []string) error {
	return c.albumBatch(ctx, albumID, ":batchAddMediaItems", "albums.batchAddMediaItems", mediaItemIDs)
}

// BatchRemoveMediaItems removes media items from an album, 50 per request.
func (c *Client) BatchRemoveMediaItems(ctx context.Context, albumID string, mediaItemIDs []string) error {
	return c.albumBatch(ctx, albumID, ":batchRemoveMediaItems", "albums.batchRemoveMediaItems", mediaItemIDs)
}

func (c *Client) albumBatch(ctx context.Context, albumID, verb, endpoint string, ids []string) error {
	if albumID == "" {
		return invalidf("album id is required")
	}

	for _, chunk := range pagination.Split(ids, MaxAlbumBatch) {
		body := map[string][]string{"mediaItemIds": chunk}
		if err := c.doJSON(ctx, http.MethodPost, "/albums/"+url.PathEscape(albumID)+verb, endpoint, nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}
