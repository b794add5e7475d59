package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/Sternrassler/gphotos-client/pkg/checkpoint"
	"github.com/Sternrassler/gphotos-client/pkg/pagination"
	"github.com/spf13/cobra"
)

// pageFlags are the paging controls shared by every listing command.
type pageFlags struct {
	pageSize  int
	budget    int
	budgetSet bool
	prefetch  int
	resumeKey string
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "items per page (0 = server default)")
	cmd.Flags().IntVar(&f.budget, "budget", 0, "maximum number of page requests (default unlimited)")
	cmd.Flags().IntVar(&f.prefetch, "prefetch", 0, "fetch up to this many pages ahead in the background")
	cmd.Flags().StringVar(&f.resumeKey, "resume-key", "", "checkpoint name to resume from and save to (needs --redis-url)")
}

func (f *pageFlags) load(cmd *cobra.Command) {
	f.budgetSet = cmd.Flags().Changed("budget")
}

func (f *pageFlags) options(name string) []pagination.Option {
	var opts []pagination.Option
	if f.budgetSet {
		opts = append(opts, pagination.WithBudget(f.budget))
	}
	if f.prefetch != 0 {
		opts = append(opts, pagination.WithPrefetch(f.prefetch))
	}
	return append(opts, pagination.WithName(name))
}

// walk drains fetcher to a.out, one compact JSON record per line. With a
// resume key the run starts at the saved continuation token and saves its
// final position afterwards, also when interrupted.
func (a *app) walk(ctx context.Context, s settings, name string, fetcher pagination.PageFetcher[json.RawMessage], params url.Values, f pageFlags) error {
	opts := append(f.options(name), pagination.WithLogger(a.logger))

	store, closeStore, err := a.newStore(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore()

	var key checkpoint.Key
	if f.resumeKey != "" {
		if store == nil {
			return errors.New("--resume-key requires --redis-url")
		}

		params = cloneValues(params)
		params.Set("endpoint", name)
		params.Set("pageSize", strconv.Itoa(f.pageSize))
		key = checkpoint.Key{Name: f.resumeKey, Params: params}

		cur, err := store.Load(ctx, key)
		switch {
		case err == nil:
			a.logger.Info().Str("key", key.String()).Msg("Resuming from checkpoint")
			opts = append(opts, pagination.WithStartToken(cur.Token))
		case errors.Is(err, checkpoint.ErrNotFound):
		default:
			return fmt.Errorf("load checkpoint: %w", err)
		}
	}

	it, err := pagination.SearchAll(fetcher, pagination.Identity[json.RawMessage], opts...)
	if err != nil {
		return err
	}
	defer it.Close()

	w := bufio.NewWriter(a.out)
	runErr := drain(ctx, it, w)
	if err := w.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("write output: %w", err)
	}

	if store != nil && f.resumeKey != "" {
		cur := it.Cursor()
		if err := store.Save(context.WithoutCancel(ctx), key, cur, s.CheckpointTTL); err != nil {
			a.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to save checkpoint")
		} else if cur.Done {
			a.logger.Info().Str("key", key.String()).Msg("Walk complete, checkpoint cleared")
		} else {
			a.logger.Info().Str("key", key.String()).Str("token", cur.Token).Msg("Checkpoint saved")
		}
	}

	a.logger.Info().
		Str("name", name).
		Int("pages", it.Pages()).
		Int("items", it.Yielded()).
		Msg("Walk finished")

	return runErr
}

func drain(ctx context.Context, it *pagination.Iterator[json.RawMessage], w io.Writer) error {
	var line bytes.Buffer
	for item, err := range it.All(ctx) {
		if err != nil {
			return err
		}
		if err := writeRecord(w, &line, item); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, buf *bytes.Buffer, record json.RawMessage) error {
	buf.Reset()
	if err := json.Compact(buf, record); err != nil {
		return fmt.Errorf("compact record: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
