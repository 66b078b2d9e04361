package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/flaskion/flaskion-client/pkg/api"
	"github.com/flaskion/flaskion-client/pkg/blob"
	"github.com/flaskion/flaskion-client/pkg/pagination"
)

type galleryOutput struct {
	Filter     string            `json:"filter" yaml:"filter"`
	Sort       string            `json:"sort" yaml:"sort"`
	Total      int               `json:"total" yaml:"total"`
	Exhausted  bool              `json:"exhausted" yaml:"exhausted"`
	Items      []pagination.Item `json:"items" yaml:"items"`
	Downloaded []string          `json:"downloaded,omitempty" yaml:"downloaded,omitempty"`
	Failed     []string          `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// downloadRenderer saves every materialized gallery image to disk.
type downloadRenderer struct {
	ctx   context.Context
	blobs *blob.Manager
	saver blob.Saver

	downloaded []string
	failed     []string
}

func (r *downloadRenderer) Clear() {
	r.downloaded = nil
	r.failed = nil
}

func (r *downloadRenderer) AppendPlaceholders(int, []pagination.Item) {}

func (r *downloadRenderer) Fill(index int, item pagination.Item, h *blob.Handle) {
	name := fmt.Sprintf("%s-%s", item.Date, path.Base(item.Path))
	target, err := r.blobs.DownloadAndRelease(r.ctx, h, name, r.saver)
	if err != nil {
		r.failed = append(r.failed, item.Path)
		return
	}
	r.downloaded = append(r.downloaded, target)
}

func (r *downloadRenderer) FillFailed(index int, item pagination.Item, err error) {
	r.failed = append(r.failed, item.Path)
}

func newGalleryCmd(a *app) *cobra.Command {
	var (
		filter   string
		sortBy   string
		pages    int
		download bool
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List stored images, optionally downloading them",
		Long: `List the images of the signed-in account page by page.

--pages limits how many pages are loaded (0 loads everything).
--download saves every listed image into --dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch filter {
			case api.FilterAll, api.FilterGenerated, api.FilterEdited:
			default:
				return fmt.Errorf("invalid type %q (must be all, generated or edited)", filter)
			}
			switch sortBy {
			case api.SortNewest, api.SortOldest:
			default:
				return fmt.Errorf("invalid sort %q (must be newest or oldest)", sortBy)
			}
			if dir == "" {
				dir = a.cfg.Download.Dir
			}

			ctx := cmd.Context()
			cfg := pagination.DefaultConfig()
			cfg.Limit = a.cfg.Gallery.Limit
			cfg.Concurrency = a.cfg.Gallery.Concurrency

			var (
				ctrl     *pagination.Controller
				renderer *downloadRenderer
			)
			if download {
				renderer = &downloadRenderer{ctx: ctx, blobs: a.blobs, saver: blob.DirSaver{Dir: dir}}
				ctrl = pagination.NewController(a.service, a.blobs, renderer, cfg)
			} else {
				ctrl = pagination.NewController(a.service, nil, nil, cfg)
			}
			defer ctrl.Close()

			start := time.Now()
			state, err := ctrl.Reset(ctx, filter, sortBy)
			for loaded := 1; err == nil && state.Phase == pagination.PhaseLoaded && (pages == 0 || loaded < pages); loaded++ {
				state, err = ctrl.LoadMore(ctx)
			}
			ctrl.Wait()

			var loadErr *pagination.LoadError
			if errors.As(err, &loadErr) {
				return a.loadError(loadErr)
			}
			if err != nil {
				return err
			}

			a.logger.Debug().
				Int("items", len(state.Items)).
				Dur("elapsed", time.Since(start)).
				Msg("Gallery listed")

			out := galleryOutput{
				Filter:    state.Filter,
				Sort:      state.Sort,
				Total:     state.Total,
				Exhausted: state.Phase == pagination.PhaseExhausted,
				Items:     state.Items,
			}
			if renderer != nil {
				out.Downloaded = renderer.downloaded
				out.Failed = renderer.failed
			}
			return renderGallery(cmd.OutOrStdout(), a.output, out)
		},
	}

	cmd.Flags().StringVarP(&filter, "type", "t", api.FilterAll, "image type (all, generated, edited)")
	cmd.Flags().StringVarP(&sortBy, "sort", "s", api.SortNewest, "sort order (newest, oldest)")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load (0 for all)")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "download the listed images")
	cmd.Flags().StringVar(&dir, "dir", "", "download directory (default from download.dir)")
	return cmd
}

func renderGallery(w io.Writer, format string, out galleryOutput) error {
	rows := make([][]string, 0, len(out.Items))
	for i, item := range out.Items {
		rows = append(rows, []string{strconv.Itoa(i + 1), item.Type, item.Date, item.Path})
	}
	if err := render(w, format, out, []string{"#", "Type", "Date", "Path"}, rows); err != nil {
		return err
	}
	if format != outputTable {
		return nil
	}

	fmt.Fprintf(w, "Showing %d of %d images\n", len(out.Items), out.Total)
	if len(out.Downloaded) > 0 {
		fmt.Fprintf(w, "Downloaded %d images\n", len(out.Downloaded))
	}
	if len(out.Failed) > 0 {
		fmt.Fprintf(w, "Failed to download %d images\n", len(out.Failed))
	}
	return nil
}
