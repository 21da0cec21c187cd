package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

func newUploadCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an invoice document and wait for extraction",
		Example: `  invoicectl upload ./acme-0042.pdf
  invoicectl upload scan.png --log-level debug`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readUploadFile(args[0])
			if err != nil {
				return err
			}
			app, err := env.open(cmd.Context())
			if err != nil {
				return err
			}

			task, err := app.UploadUC.Start(cmd.Context(), file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for p := range task.Progress() {
				renderProgress(out, p)
			}
			res, err := task.Wait()
			renderUploadResult(out, res)
			return err
		},
	}
}

func newReprocessCmd(env *cliEnv) *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "reprocess <invoice-id>",
		Short: "Re-run extraction for a pending invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			if inline {
				if err := app.ProcessUC.ProcessByID(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invoice %s re-extracted\n", args[0])
				return nil
			}
			out, err := app.ProcessUC.RequestReprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !out.Queued && out.Invoice != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "invoice %s re-extracted, now %s\n", args[0], out.Invoice.Status)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invoice %s queued for extraction\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "extract in this process instead of queueing")
	return cmd
}

func newStatsCmd(env *cliEnv) *cobra.Command {
	var vendors int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics and top vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			stats, err := app.Invoices.Stats(cmd.Context(), now)
			if err != nil {
				return err
			}
			spend, err := app.Invoices.VendorSpend(cmd.Context(), vendors)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats, spend, now)
			return nil
		},
	}
	cmd.Flags().IntVar(&vendors, "vendors", domain.VendorSpendTop, "number of vendors to show")
	return cmd
}

func newListCmd(env *cliEnv) *cobra.Command {
	var (
		status   string
		search   string
		sortBy   string
		order    string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices with the same filters as the dashboard",
		Example: `  invoicectl list --status pending
  invoicectl list --search acme --sort total_amount --order asc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.ListFilter{
				Page:       page,
				PageSize:   pageSize,
				Search:     search,
				SortColumn: sortBy,
			}
			if status != "" && status != "all" {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			if order != "" {
				dir, ok := domain.ParseSortDirection(order)
				if !ok {
					return fmt.Errorf("unknown sort order %q", order)
				}
				filter.SortDirection = dir
			}

			app, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			result, err := app.Invoices.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			renderList(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "status filter (pending, processed, approved, paid, rejected, all)")
	cmd.Flags().StringVar(&search, "search", "", "match invoice number or vendor")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort column")
	cmd.Flags().StringVar(&order, "order", "", "sort order (asc, desc)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", domain.DefaultPageSize, "rows per page")
	return cmd
}

func readUploadFile(path string) (domain.UploadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.UploadFile{
		Filename: filepath.Base(path),
		MimeType: detectMimeType(path, data),
		Data:     data,
	}, nil
}

func detectMimeType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		mediaType, _, err := mime.ParseMediaType(byExt)
		if err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
