package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flaskion/flaskion-client/pkg/api"
	"github.com/flaskion/flaskion-client/pkg/blob"
)

type generatedOutput struct {
	Paths      []string `json:"paths" yaml:"paths"`
	Downloaded []string `json:"downloaded,omitempty" yaml:"downloaded,omitempty"`
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		params   api.GenerateParams
		download bool
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate images from a prompt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.Prompt = args[0]
			}

			reply, err := a.service.Generate(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("image generation failed: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}
			return a.finishGenerated(cmd, reply.Data.Paths, download, dir)
		},
	}

	cmd.Flags().StringVar(&params.Prompt, "prompt", "", "prompt describing the image")
	cmd.Flags().StringVar(&params.Model, "model", "", "generation model")
	cmd.Flags().StringVar(&params.Resolution, "resolution", "", "output resolution")
	cmd.Flags().StringVar(&params.Aspect, "aspect", "", "aspect ratio, e.g. 16:9")
	cmd.Flags().StringVar(&params.SafetyFilter, "safety-filter", "", "safety filter")
	cmd.Flags().StringVar(&params.SafetyLevel, "safety-level", "", "safety filter level")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "download the generated images")
	cmd.Flags().StringVar(&dir, "dir", "", "download directory (default from download.dir)")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var (
		params   api.EditParams
		source   string
		download bool
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "edit --source FILE [prompt]",
		Short: "Edit an image with a prompt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.Prompt = args[0]
			}
			if source != "" {
				data, err := os.ReadFile(source)
				if err != nil {
					return fmt.Errorf("failed to read source image: %w", err)
				}
				params.SourceImage = data
				params.SourceName = filepath.Base(source)
				params.SourceType = http.DetectContentType(data)
			}

			reply, err := a.service.Edit(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("image edit failed: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}
			return a.finishGenerated(cmd, reply.Data.Paths, download, dir)
		},
	}

	cmd.Flags().StringVar(&params.Prompt, "prompt", "", "edit instruction")
	cmd.Flags().StringVar(&source, "source", "", "source image file")
	cmd.Flags().StringVar(&params.Model, "model", "", "edit model")
	cmd.Flags().StringVar(&params.Resolution, "resolution", "", "output resolution")
	cmd.Flags().StringVar(&params.Aspect, "aspect", "", "aspect ratio, e.g. 16:9")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "download the resulting images")
	cmd.Flags().StringVar(&dir, "dir", "", "download directory (default from download.dir)")
	return cmd
}

func (a *app) finishGenerated(cmd *cobra.Command, paths []string, download bool, dir string) error {
	out := generatedOutput{Paths: paths}
	if download {
		if dir == "" {
			dir = a.cfg.Download.Dir
		}
		saved, err := a.downloadAll(cmd.Context(), paths, blob.DirSaver{Dir: dir})
		out.Downloaded = saved
		if err != nil {
			return err
		}
	}
	return renderGenerated(cmd.OutOrStdout(), a.output, out)
}

// downloadAll saves each path and stops at the first failure.
func (a *app) downloadAll(ctx context.Context, paths []string, saver blob.Saver) ([]string, error) {
	saved := make([]string, 0, len(paths))
	for _, p := range paths {
		h, err := a.blobs.Acquire(ctx, p)
		if err != nil {
			return saved, fmt.Errorf("failed to download %s: %w", p, err)
		}
		target, err := a.blobs.DownloadAndRelease(ctx, h, "", saver)
		if err != nil {
			return saved, err
		}
		saved = append(saved, target)
	}
	return saved, nil
}

func renderGenerated(w io.Writer, format string, out generatedOutput) error {
	rows := make([][]string, 0, len(out.Paths))
	for i, p := range out.Paths {
		saved := ""
		if i < len(out.Downloaded) {
			saved = out.Downloaded[i]
		}
		rows = append(rows, []string{p, saved})
	}
	return render(w, format, out, []string{"Path", "Saved To"}, rows)
}
