package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/gphotos-client/internal/testutil"
	"github.com/Sternrassler/gphotos-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mock *testutil.MockPhotos, interval time.Duration) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.Client())
	cfg.BaseURL = mock.BaseURL()
	cfg.UploadURL = mock.UploadURL()
	cfg.MinInterval = interval

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func ids(t *testing.T, records []json.RawMessage) []string {
	t.Helper()

	out := make([]string, 0, len(records))
	for _, raw := range records {
		var item struct {
			ID        string `json:"id"`
			MediaItem struct {
				ID string `json:"id"`
			} `json:"mediaItem"`
		}
		require.NoError(t, json.Unmarshal(raw, &item))
		if item.ID == "" {
			item.ID = item.MediaItem.ID
		}
		out = append(out, item.ID)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(&http.Client{}),
		},
		{
			name: "nil http client",
			config: Config{
				UserAgent: DefaultUserAgent,
			},
			expectError: true,
			errorMsg:    "http client is required",
		},
		{
			name: "empty user agent",
			config: Config{
				HTTPClient: &http.Client{},
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "negative interval",
			config: Config{
				HTTPClient:  &http.Client{},
				UserAgent:   DefaultUserAgent,
				MinInterval: -time.Second,
			},
			expectError: true,
			errorMsg:    "create throttler",
		},
		{
			name: "negative upload rate",
			config: Config{
				HTTPClient:           &http.Client{},
				UserAgent:            DefaultUserAgent,
				UploadBytesPerSecond: -1,
			},
			expectError: true,
			errorMsg:    "upload_bytes_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("New() error = %q, want it to contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			if c.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
			}
			if c.Throttler().Interval() != tt.config.MinInterval {
				t.Errorf("Interval() = %v, want %v", c.Throttler().Interval(), tt.config.MinInterval)
			}
		})
	}
}

func TestClient_Do_Headers(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a"})

	c := newTestClient(t, mock, 0)

	_, err := c.GetMediaItem(context.Background(), "missing")
	require.Error(t, err)

	reqs := mock.RequestsTo("/v1/mediaItems/missing")
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultUserAgent, reqs[0].Header.Get("User-Agent"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
}

func TestClient_Do_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantClass  ErrorClass
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "rate limited",
			response:   testutil.NewRateLimitResponse(),
			wantClass:  ErrorClassRateLimit,
			wantStatus: 429,
			wantMsg:    "RESOURCE_EXHAUSTED",
		},
		{
			name:       "server error",
			response:   testutil.NewServerErrorResponse(),
			wantClass:  ErrorClassServer,
			wantStatus: 500,
			wantMsg:    "INTERNAL: Internal error encountered.",
		},
		{
			name:       "forbidden without envelope",
			response:   testutil.MockResponse{StatusCode: 403, Body: "nope"},
			wantClass:  ErrorClassClient,
			wantStatus: 403,
			wantMsg:    "403 Forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockPhotos()
			defer mock.Close()
			mock.SetResponse("/v1/albums/x", tt.response)

			c := newTestClient(t, mock, 0)
			_, err := c.GetAlbum(context.Background(), "x")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "error = %v", err)
			assert.Equal(t, tt.wantClass, apiErr.ErrorClass)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, "albums.get", apiErr.Endpoint)
			assert.Contains(t, apiErr.Message, tt.wantMsg)
		})
	}
}

func TestClient_Do_NotFound(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()

	c := newTestClient(t, mock, 0)
	_, err := c.GetAlbum(context.Background(), "gone")
	assert.True(t, IsNotFound(err))
}

func TestClient_Do_NetworkError(t *testing.T) {
	mock := testutil.NewMockPhotos()
	c := newTestClient(t, mock, 0)
	mock.Close()

	_, err := c.GetAlbum(context.Background(), "a")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassNetwork, apiErr.ErrorClass)
	assert.NotNil(t, apiErr.Err)
}

func TestClient_PacesRequests(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a"}, []string{"b"}, []string{"c"})

	const interval = 50 * time.Millisecond
	c := newTestClient(t, mock, interval)

	it, err := c.SearchAll(SearchRequest{})
	require.NoError(t, err)
	items, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, items))

	reqs := mock.RequestsTo("/v1/mediaItems:search")
	require.Len(t, reqs, 3)
	for i := 1; i < len(reqs); i++ {
		gap := reqs[i].At.Sub(reqs[i-1].At)
		// Server receipt lags call start by a little, allow some slack.
		if gap < interval-10*time.Millisecond {
			t.Errorf("gap between request %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	dateFilter := json.RawMessage(`{"dates":[{"year":2024}]}`)

	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{name: "empty", req: SearchRequest{}},
		{name: "album", req: SearchRequest{AlbumID: "a1", PageSize: 100}},
		{name: "album and filters", req: SearchRequest{AlbumID: "a1", Filters: &SearchFilters{}}, wantErr: true},
		{name: "page size too large", req: SearchRequest{PageSize: 101}, wantErr: true},
		{name: "negative page size", req: SearchRequest{PageSize: -1}, wantErr: true},
		{name: "order without date filter", req: SearchRequest{OrderBy: "MediaMetadata.creation_time"}, wantErr: true},
		{
			name: "order with date filter",
			req: SearchRequest{
				Filters: &SearchFilters{DateFilter: dateFilter},
				OrderBy: "MediaMetadata.creation_time desc",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSearchAll_FollowsContinuationTokens(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a", "b"}, []string{"c"}, []string{"d"})

	c := newTestClient(t, mock, 0)

	it, err := c.SearchAll(SearchRequest{AlbumID: "album-1"})
	require.NoError(t, err)

	items, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(t, items))
	assert.Equal(t, 3, it.Pages())

	reqs := mock.RequestsTo("/v1/mediaItems:search")
	require.Len(t, reqs, 3)

	wantTokens := []string{"", "page-1", "page-2"}
	for i, req := range reqs {
		var body searchBody
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, wantTokens[i], body.PageToken)
		assert.Equal(t, DefaultPageSize, body.PageSize)
		assert.Equal(t, "album-1", body.AlbumID)
	}
}

func TestSearchAll_Budget(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a", "b"}, []string{"c"}, []string{"d"})

	c := newTestClient(t, mock, 0)

	it, err := c.SearchAll(SearchRequest{}, pagination.WithBudget(2))
	require.NoError(t, err)

	items, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(t, items))
	assert.Len(t, mock.RequestsTo("/v1/mediaItems:search"), 2)

	cursor := it.Cursor()
	assert.Equal(t, "page-2", cursor.Token)
	assert.Equal(t, 0, cursor.Remaining)
}

func TestSearchAll_InvalidRequestSendsNothing(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()

	c := newTestClient(t, mock, 0)

	_, err := c.SearchAll(SearchRequest{AlbumID: "a", Filters: &SearchFilters{}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestSearchAll_LaterPageFails(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a"}, []string{"b"})
	mock.SetHandler("/v1/mediaItems:search", func(w http.ResponseWriter, r *http.Request, body []byte) {
		if strings.Contains(string(body), "page-1") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"mediaItems":[` + testutil.MediaItemJSON("a") + `],"nextPageToken":"page-1"}`))
	})

	c := newTestClient(t, mock, 0)
	it, err := c.SearchAll(SearchRequest{})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(t, []json.RawMessage{first}))

	_, err = it.Next(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorClassServer, apiErr.ErrorClass)
}

func TestListPages(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetMediaItemPages([]string{"a"}, []string{"b"})

	c := newTestClient(t, mock, 0)

	_, err := c.ListPages(MaxMediaItemPageSize + 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	fetcher, err := c.ListPages(10)
	require.NoError(t, err)

	it, err := pagination.SearchAll(fetcher, pagination.Identity[json.RawMessage])
	require.NoError(t, err)
	items, err := it.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(t, items))

	reqs := mock.RequestsTo("/v1/mediaItems")
	require.Len(t, reqs, 2)
	assert.Equal(t, "10", reqs[0].Query["pageSize"][0])
	assert.Empty(t, reqs[0].Query["pageToken"])
	assert.Equal(t, "page-1", reqs[1].Query["pageToken"][0])
}

func TestAlbumPages(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetAlbumPages([]string{"x", "y"}, []string{"z"})

	c := newTestClient(t, mock, 0)

	for _, shared := range []bool{false, true} {
		var (
			fetcher pagination.PageFetcher[json.RawMessage]
			err     error
		)
		if shared {
			fetcher, err = c.SharedAlbumPages(0, true)
		} else {
			fetcher, err = c.AlbumPages(0, false)
		}
		require.NoError(t, err)

		it, err := pagination.SearchAll(fetcher, pagination.Identity[json.RawMessage])
		require.NoError(t, err)
		items, err := it.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y", "z"}, ids(t, items), "shared=%v", shared)
	}

	shared := mock.RequestsTo("/v1/sharedAlbums")
	require.NotEmpty(t, shared)
	assert.Equal(t, "true", shared[0].Query["excludeNonAppCreatedData"][0])
	assert.Equal(t, strconv.Itoa(DefaultAlbumPageSize), shared[0].Query["pageSize"][0])

	_, err := c.AlbumPages(MaxAlbumPageSize+1, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBatchGetMediaItems_ChunksAndKeepsOrder(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()

	c := newTestClient(t, mock, 0)

	want := make([]string, 120)
	for i := range want {
		want[i] = "id-" + strings.Repeat("x", i%3) + string(rune('a'+i%26))
	}

	results, err := c.BatchGetMediaItems(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, want, ids(t, results))

	reqs := mock.RequestsTo("/v1/mediaItems:batchGet")
	require.Len(t, reqs, 3)
	for _, req := range reqs {
		assert.LessOrEqual(t, len(req.Query["mediaItemIds"]), pagination.MaxBatchGetIDs)
	}
}

func TestBatchCreateMediaItems(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetResponse("/v1/mediaItems:batchCreate", testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"newMediaItemResults":[{"uploadToken":"tok","status":{"message":"Success"}}]}`,
	})

	c := newTestClient(t, mock, 0)
	ctx := context.Background()

	_, err := c.BatchCreateMediaItems(ctx, "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.BatchCreateMediaItems(ctx, "", make([]NewMediaItem, MaxBatchCreate+1), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.BatchCreateMediaItems(ctx, "a1", []NewMediaItem{{UploadToken: "tok"}}, &AlbumPosition{Position: PositionAfterMediaItem})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, mock.GetRequestCount())

	results, err := c.BatchCreateMediaItems(ctx, "a1", []NewMediaItem{{UploadToken: "tok", FileName: "x.jpg", Description: "beach"}},
		&AlbumPosition{Position: PositionFirstInAlbum})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	reqs := mock.RequestsTo("/v1/mediaItems:batchCreate")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{
		"albumId": "a1",
		"albumPosition": {"position": "FIRST_IN_ALBUM"},
		"newMediaItems": [{"description": "beach", "simpleMediaItem": {"uploadToken": "tok", "fileName": "x.jpg"}}]
	}`, string(reqs[0].Body))
}

func TestPatchMediaItem(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetResponse("/v1/mediaItems/m1", testutil.MockResponse{StatusCode: 200, Body: `{"id":"m1","description":"new"}`})

	c := newTestClient(t, mock, 0)

	_, err := c.PatchMediaItem(context.Background(), "m1", UpdateField("filename"), "x")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	item, err := c.PatchMediaItem(context.Background(), "m1", FieldDescription, "new")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","description":"new"}`, string(item))

	reqs := mock.RequestsTo("/v1/mediaItems/m1")
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].Method)
	assert.Equal(t, "description", reqs[0].Query["updateMask"][0])
	assert.JSONEq(t, `{"description":"new"}`, string(reqs[0].Body))
}

func TestAlbumOperations(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()
	mock.SetResponse("/v1/albums", testutil.MockResponse{StatusCode: 200, Body: `{"id":"a1","title":"Trip"}`})
	mock.SetResponse("/v1/albums/a1:share", testutil.MockResponse{StatusCode: 200, Body: `{"shareInfo":{"shareToken":"s"}}`})
	mock.SetResponse("/v1/albums/a1:unshare", testutil.MockResponse{StatusCode: 200, Body: `{}`})
	mock.SetResponse("/v1/albums/a1:addEnrichment", testutil.MockResponse{StatusCode: 200, Body: `{"enrichmentItem":{"id":"e1"}}`})
	mock.SetResponse("/v1/albums/a1:batchAddMediaItems", testutil.MockResponse{StatusCode: 200, Body: `{}`})
	mock.SetResponse("/v1/albums/a1:batchRemoveMediaItems", testutil.MockResponse{StatusCode: 200, Body: `{}`})

	c := newTestClient(t, mock, 0)
	ctx := context.Background()

	album, err := c.CreateAlbum(ctx, "Trip")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1","title":"Trip"}`, string(album))
	assert.JSONEq(t, `{"album":{"title":"Trip"}}`, string(mock.RequestsTo("/v1/albums")[0].Body))

	share, err := c.ShareAlbum(ctx, "a1", true, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shareToken":"s"}`, string(share))
	assert.JSONEq(t, `{"sharedAlbumOptions":{"isCollaborative":true,"isCommentable":false}}`,
		string(mock.RequestsTo("/v1/albums/a1:share")[0].Body))

	require.NoError(t, c.UnshareAlbum(ctx, "a1"))

	id, err := c.AddEnrichment(ctx, "a1", EnrichmentText, map[string]string{"text": "Day one"},
		AlbumPosition{Position: PositionLastInAlbum})
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
	assert.JSONEq(t, `{"newEnrichmentItem":{"textEnrichment":{"text":"Day one"}},"albumPosition":{"position":"LAST_IN_ALBUM"}}`,
		string(mock.RequestsTo("/v1/albums/a1:addEnrichment")[0].Body))

	_, err = c.AddEnrichment(ctx, "a1", EnrichmentType("videoEnrichment"), nil, AlbumPosition{Position: PositionLastInAlbum})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	items := make([]string, 120)
	for i := range items {
		items[i] = "m"
	}
	require.NoError(t, c.BatchAddMediaItems(ctx, "a1", items))
	assert.Len(t, mock.RequestsTo("/v1/albums/a1:batchAddMediaItems"), 3)

	require.NoError(t, c.BatchRemoveMediaItems(ctx, "a1", items[:10]))
	assert.Len(t, mock.RequestsTo("/v1/albums/a1:batchRemoveMediaItems"), 1)

	assert.ErrorIs(t, c.BatchAddMediaItems(ctx, "", items), ErrInvalidRequest)
}

func TestAlbumPosition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pos     AlbumPosition
		wantErr bool
	}{
		{name: "first", pos: AlbumPosition{Position: PositionFirstInAlbum}},
		{name: "after media", pos: AlbumPosition{Position: PositionAfterMediaItem, RelativeMediaItemID: "m"}},
		{name: "after media without anchor", pos: AlbumPosition{Position: PositionAfterMediaItem}, wantErr: true},
		{name: "after enrichment", pos: AlbumPosition{Position: PositionAfterEnrichmentItem, RelativeEnrichmentItemID: "e"}},
		{name: "after enrichment without anchor", pos: AlbumPosition{Position: PositionAfterEnrichmentItem}, wantErr: true},
		{name: "unknown", pos: AlbumPosition{Position: "MIDDLE"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.pos.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	mock := testutil.NewMockPhotos()
	defer mock.Close()

	cfg := DefaultConfig(mock.Client())
	cfg.BaseURL = mock.BaseURL()
	cfg.UploadURL = mock.UploadURL()
	cfg.MinInterval = 0
	cfg.UploadBytesPerSecond = 1 << 20
	c, err := New(cfg)
	require.NoError(t, err)

	token, err := c.Upload(context.Background(), "/tmp/holiday/IMG_0001.png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, "upload-token-1", token)

	reqs := mock.RequestsTo("/v1/uploads")
	require.Len(t, reqs, 1)
	assert.Equal(t, "pixels", string(reqs[0].Body))
	assert.Equal(t, "application/octet-stream", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "image/png", reqs[0].Header.Get("X-Goog-Upload-Content-Type"))
	assert.Equal(t, "IMG_0001.png", reqs[0].Header.Get("X-Goog-Upload-File-Name"))
	assert.Equal(t, "raw", reqs[0].Header.Get("X-Goog-Upload-Protocol"))

	_, err = c.Upload(context.Background(), "", io.LimitReader(strings.NewReader("x"), 1))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
