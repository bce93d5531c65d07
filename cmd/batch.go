package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adrata/intel-engine/internal/ingest"
	"github.com/adrata/intel-engine/internal/intel"
)

var (
	batchCompanyID string
	batchForce     bool
	batchSheet     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <roster>",
	Short: "Enrich a roster of people from a CSV or XLSX export",
	Long:  "Accepts a local file path, an http(s) URL, or an ftp URL. CSV exports stream; XLSX exports are read whole.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := loadRoster(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return eris.New("roster contains no usable rows")
		}

		reqs := make([]intel.EnrichRequest, len(entries))
		for i, entry := range entries {
			reqs[i] = intel.EnrichRequest{
				Query:        entry.Query,
				CompanyID:    batchCompanyID,
				ForceRefresh: batchForce,
			}
		}

		start := time.Now()
		items := env.Engine.EnrichBatch(ctx, reqs, cfg.Batch.MaxConcurrent)

		var resolved, lowConf, failed int
		for i, item := range items {
			switch {
			case item.Err != nil:
				failed++
				zap.L().Warn("batch entry failed",
					zap.Int("line", entries[i].Line),
					zap.Error(item.Err),
				)
			case item.Contact.LowConfidence:
				lowConf++
			default:
				resolved++
			}
		}

		zap.L().Info("batch complete",
			zap.Int("total", len(items)),
			zap.Int("resolved", resolved),
			zap.Int("low_confidence", lowConf),
			zap.Int("failed", failed),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

// loadRoster parses roster entries from a local path or a remote URL.
func loadRoster(ctx context.Context, source string) ([]ingest.RosterEntry, error) {
	if strings.HasSuffix(strings.ToLower(source), ".xlsx") {
		path, cleanup, err := materialize(ctx, source)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return rosterFromXLSX(ctx, path)
	}

	r, err := openSource(ctx, source)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return rosterFromCSV(ctx, r)
}

// openSource returns a reader over a local file, http(s) URL, or ftp URL.
func openSource(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return newHTTPFetcher().Download(ctx, source)
	case strings.HasPrefix(source, "ftp://"):
		return newFTPFetcher().Download(ctx, source)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, eris.Wrapf(err, "open roster %s", source)
		}
		return f, nil
	}
}

// materialize downloads remote sources to a temp file; the XLSX reader needs
// a seekable file. Local paths pass through with a no-op cleanup.
func materialize(ctx context.Context, source string) (string, func(), error) {
	if !strings.Contains(source, "://") {
		return source, func() {}, nil
	}

	tmp, err := os.CreateTemp("", "roster-*.xlsx")
	if err != nil {
		return "", nil, eris.Wrap(err, "create temp file")
	}
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	var n int64
	if strings.HasPrefix(source, "ftp://") {
		n, err = newFTPFetcher().DownloadToFile(ctx, source, tmp.Name())
	} else {
		n, err = newHTTPFetcher().DownloadToFile(ctx, source, tmp.Name())
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	zap.L().Debug("roster downloaded", zap.String("source", source), zap.Int64("bytes", n))
	return tmp.Name(), cleanup, nil
}

func newHTTPFetcher() *ingest.HTTPFetcher {
	return ingest.NewHTTPFetcher(ingest.HTTPOptions{
		UserAgent:   cfg.Ingest.UserAgent,
		Timeout:     time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		MaxRetries:  cfg.Ingest.MaxRetries,
		RatePerHost: rate.Limit(cfg.Ingest.RatePerHost),
	})
}

func newFTPFetcher() *ingest.FTPFetcher {
	return ingest.NewFTPFetcher(ingest.FTPOptions{
		Timeout:  time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		User:     cfg.Ingest.FTPUser,
		Password: cfg.Ingest.FTPPassword,
	})
}

func rosterFromCSV(ctx context.Context, r io.Reader) ([]ingest.RosterEntry, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := ingest.StreamCSV(ctx, r, ingest.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})
	return ingest.ParseRoster(ctx, rowCh, errCh, headerCh)
}

func rosterFromXLSX(ctx context.Context, path string) ([]ingest.RosterEntry, error) {
	headerCh := make(chan []string, 1)
	opts := ingest.XLSXOptions{HeaderCh: headerCh, SkipRows: 1}
	if batchSheet != "" {
		opts.SheetName = batchSheet
	}
	rowCh, errCh := ingest.StreamXLSX(ctx, path, opts)
	return ingest.ParseRoster(ctx, rowCh, errCh, headerCh)
}

func init() {
	batchCmd.Flags().StringVar(&batchCompanyID, "company-id", "", "attach all contacts to this company roster")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "re-run the waterfall for cached contacts")
	batchCmd.Flags().StringVar(&batchSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	rootCmd.AddCommand(batchCmd)
}
