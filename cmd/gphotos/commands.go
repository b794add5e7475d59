package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/gphotos-client/pkg/client"
	"github.com/Sternrassler/gphotos-client/pkg/pagination"
	"github.com/spf13/cobra"
)

func (a *app) searchCmd() *cobra.Command {
	var (
		pf              pageFlags
		albumID         string
		mediaType       string
		includeArchived bool
		appCreatedOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search media items, optionally within one album",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf.load(cmd)
			s, err := a.settings()
			if err != nil {
				return err
			}

			req := client.SearchRequest{AlbumID: albumID, PageSize: pf.pageSize}
			if mediaType != "" || includeArchived || appCreatedOnly {
				req.Filters = &client.SearchFilters{
					IncludeArchivedMedia:     includeArchived,
					ExcludeNonAppCreatedData: appCreatedOnly,
				}
				if mediaType != "" {
					filter, err := mediaTypeFilter(mediaType)
					if err != nil {
						return err
					}
					req.Filters.MediaTypeFilter = filter
				}
			}

			c, err := a.newClient(s)
			if err != nil {
				return err
			}
			defer c.Close()

			fetcher, err := c.SearchPages(req)
			if err != nil {
				return err
			}

			ctx, cancel := a.runContext(cmd.Context(), s)
			defer cancel()

			params := url.Values{}
			if albumID != "" {
				params.Set("albumId", albumID)
			}
			if mediaType != "" {
				params.Set("mediaType", strings.ToUpper(mediaType))
			}
			return a.walk(ctx, s, "mediaItems:search", fetcher, params, pf)
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&albumID, "album", "", "only items of this album")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "PHOTO, VIDEO or ALL_MEDIA")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived media")
	cmd.Flags().BoolVar(&appCreatedOnly, "app-created-only", false, "only media created by this app")
	return cmd
}

func mediaTypeFilter(kind string) (json.RawMessage, error) {
	kind = strings.ToUpper(kind)
	switch kind {
	case "PHOTO", "VIDEO", "ALL_MEDIA":
		return json.Marshal(map[string][]string{"mediaTypes": {kind}})
	default:
		return nil, fmt.Errorf("unknown media type %q (want PHOTO, VIDEO or ALL_MEDIA)", kind)
	}
}

func (a *app) listCmd() *cobra.Command {
	var pf pageFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every media item in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf.load(cmd)
			s, err := a.settings()
			if err != nil {
				return err
			}

			c, err := a.newClient(s)
			if err != nil {
				return err
			}
			defer c.Close()

			fetcher, err := c.ListPages(pf.pageSize)
			if err != nil {
				return err
			}

			ctx, cancel := a.runContext(cmd.Context(), s)
			defer cancel()
			return a.walk(ctx, s, "mediaItems.list", fetcher, nil, pf)
		},
	}

	pf.register(cmd)
	return cmd
}

func (a *app) albumsCmd() *cobra.Command {
	var (
		pf             pageFlags
		shared         bool
		appCreatedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "albums",
		Short: "List albums, or shared albums with --shared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf.load(cmd)
			s, err := a.settings()
			if err != nil {
				return err
			}

			c, err := a.newClient(s)
			if err != nil {
				return err
			}
			defer c.Close()

			name := "albums.list"
			var fetcher pagination.PageFetcher[json.RawMessage]
			if shared {
				name = "sharedAlbums.list"
				fetcher, err = c.SharedAlbumPages(pf.pageSize, appCreatedOnly)
			} else {
				fetcher, err = c.AlbumPages(pf.pageSize, appCreatedOnly)
			}
			if err != nil {
				return err
			}

			ctx, cancel := a.runContext(cmd.Context(), s)
			defer cancel()
			return a.walk(ctx, s, name, fetcher, nil, pf)
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&shared, "shared", false, "list shared albums")
	cmd.Flags().BoolVar(&appCreatedOnly, "app-created-only", false, "only albums created by this app")
	return cmd
}

func (a *app) uploadCmd() *cobra.Command {
	var (
		albumID     string
		description string
	)

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files and create media items from them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}

			c, err := a.newClient(s)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := a.runContext(cmd.Context(), s)
			defer cancel()

			items := make([]client.NewMediaItem, 0, len(files))
			for _, path := range files {
				token, err := c.UploadFile(ctx, path)
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				a.logger.Debug().Str("file", path).Msg("Uploaded")
				items = append(items, client.NewMediaItem{
					UploadToken: token,
					FileName:    filepath.Base(path),
					Description: description,
				})
			}

			var line bytes.Buffer
			for _, chunk := range pagination.Split(items, client.MaxBatchCreate) {
				results, err := c.BatchCreateMediaItems(ctx, albumID, chunk, nil)
				if err != nil {
					return err
				}
				for _, r := range results {
					if err := writeRecord(a.out, &line, r); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&albumID, "album", "", "add the new items to this album")
	cmd.Flags().StringVar(&description, "description", "", "description for every new item")
	return cmd
}
