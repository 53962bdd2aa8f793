package main

import (
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/model"
)

var (
	extractDir  string
	extractNote string
)

// extractCmd processes filings already on disk, laid out as
// <dir>/<cik>/<period>/<files>. Files ending in .xml are treated as XBRL
// instances; everything else as filing text.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Process local filing files and update the time series",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if extractDir == "" {
			return eris.New("--dir is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipe, err := buildPipeline(st)
		if err != nil {
			return err
		}

		filings := make(chan model.Filing)
		walkErr := make(chan error, 1)
		go func() {
			defer close(filings)
			walkErr <- filepath.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				filing, err := filingFromPath(extractDir, path)
				if err != nil {
					zap.L().Warn("skipping file", zap.String("path", path), zap.Error(err))
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case filings <- *filing:
					return nil
				}
			})
		}()

		summary, err := pipe.Run(ctx, filings, extractNote)
		if err != nil {
			return err
		}
		if err := <-walkErr; err != nil {
			return eris.Wrapf(err, "walk %s", extractDir)
		}
		printSummary(summary)
		return nil
	},
}

// filingFromPath derives filing identity from the directory layout. The file
// base name (without extension) stands in for the accession number.
func filingFromPath(root, path string) (*model.Filing, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return nil, eris.Errorf("expected <cik>/<period>/<file>, got %s", rel)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	name := filepath.Base(path)
	format := model.FormatPlainText
	if strings.HasSuffix(name, ".xml") {
		format = model.FormatXBRL
	}

	return &model.Filing{
		CIK:       parts[0],
		Period:    parts[1],
		Accession: strings.TrimSuffix(name, filepath.Ext(name)),
		FormType:  "10-K",
		Format:    format,
		SourceURL: "file://" + path,
		Payload:   payload,
	}, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractDir, "dir", "", "directory of local filings (<cik>/<period>/<file>)")
	extractCmd.Flags().StringVar(&extractNote, "note", "", "run log note")
	rootCmd.AddCommand(extractCmd)
}
