package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/edgar"
	"github.com/sells-group/ta-tracker/internal/model"
)

var (
	runCIKs     []string
	runCIKsFile string
	runFromYear int
	runToYear   int
	runNote     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch annual filings from EDGAR and update the time series",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ciks, err := gatherCIKs()
		if err != nil {
			return err
		}
		if len(ciks) == 0 {
			return eris.New("no CIKs given: use --cik or --ciks-file")
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
		client := edgar.New(newFetcher(), cfg.EDGAR)

		filings := make(chan model.Filing)
		go func() {
			defer close(filings)
			for _, cik := range ciks {
				metas, err := client.ListAnnualFilings(ctx, cik, runFromYear, runToYear)
				if err != nil {
					zap.L().Warn("skipping issuer, filing list failed",
						zap.String("cik", cik),
						zap.Error(err),
					)
					continue
				}
				for _, meta := range metas {
					filing, err := client.FetchFiling(ctx, meta)
					if err != nil {
						zap.L().Warn("skipping filing, fetch failed",
							zap.String("accession", meta.Accession),
							zap.Error(err),
						)
						continue
					}
					select {
					case <-ctx.Done():
						return
					case filings <- *filing:
					}
				}
			}
		}()

		summary, err := pipe.Run(ctx, filings, runNote)
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	},
}

func gatherCIKs() ([]string, error) {
	seen := make(map[string]bool)
	var ciks []string
	add := func(cik string) {
		cik = strings.TrimSpace(cik)
		if cik != "" && !seen[cik] {
			seen[cik] = true
			ciks = append(ciks, cik)
		}
	}

	for _, cik := range runCIKs {
		add(cik)
	}
	if runCIKsFile != "" {
		f, err := os.Open(runCIKsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "open ciks file %s", runCIKsFile)
		}
		defer f.Close() //nolint:errcheck
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrapf(err, "read ciks file %s", runCIKsFile)
		}
	}
	return ciks, nil
}

func printSummary(s *model.RunSummary) {
	fmt.Printf("Issuers:           %d\n", s.Issuers)
	fmt.Printf("Filings processed: %d\n", s.FilingsProcessed)
	fmt.Printf("Filings skipped:   %d\n", s.FilingsSkipped)
	fmt.Printf("Mentions:          %d\n", s.Mentions)
	fmt.Printf("Committed:         %d\n", s.Committed)
	fmt.Printf("Review queued:     %d\n", s.ReviewQueued)
	fmt.Printf("Conflicts:         %d\n", s.Conflicts)
}

func init() {
	runCmd.Flags().StringSliceVar(&runCIKs, "cik", nil, "issuer CIK (repeatable)")
	runCmd.Flags().StringVar(&runCIKsFile, "ciks-file", "", "file with one CIK per line")
	runCmd.Flags().IntVar(&runFromYear, "from", 0, "earliest report year")
	runCmd.Flags().IntVar(&runToYear, "to", 0, "latest report year")
	runCmd.Flags().StringVar(&runNote, "note", "", "run log note")
	rootCmd.AddCommand(runCmd)
}
