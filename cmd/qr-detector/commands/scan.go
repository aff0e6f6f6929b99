package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/qr-detector/cmd/qr-detector/ui"
	"github.com/spherical/qr-detector/internal/config"
	"github.com/spherical/qr-detector/pkg/qrdetect"
)

var (
	scanJSON    bool
	scanWorkers int
	scanDPI     float64
)

var scanCmd = &cobra.Command{
	Use:   "scan <file.pdf|url>",
	Short: "Scan a PDF document for QR codes",
	Long: `Scan a local PDF file or a remote document (http, https or gs:// URL)
and print the QR codes found on every page.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the raw JSON result")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 0, "pages scanned in parallel (default from config)")
	scanCmd.Flags().Float64Var(&scanDPI, "dpi", 0, "rasterization resolution (default from config)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	source := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Processing.Workers = scanWorkers
	}
	if cmd.Flags().Changed("dpi") {
		cfg.Processing.DPI = scanDPI
	}

	logger := newLogger(cfg, true)
	client, err := qrdetect.NewClientWithConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventCh := make(chan qrdetect.ProgressEvent, 256)
	type outcome struct {
		result *qrdetect.DocumentResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer close(eventCh)
		var res *qrdetect.DocumentResult
		var err error
		if isRemote(source) {
			res, err = client.ProcessURLWithEvents(ctx, source, eventCh)
		} else {
			res, err = client.ProcessFileWithEvents(ctx, source, eventCh)
		}
		done <- outcome{result: res, err: err}
	}()

	if scanJSON {
		for range eventCh {
		}
	} else {
		showProgress(source, eventCh)
	}

	out := <-done
	if out.err != nil {
		return fmt.Errorf("scan failed: %w", out.err)
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out.result)
	}

	printSummary(out.result)
	return nil
}

func isRemote(source string) bool {
	return strings.Contains(source, "://")
}

func showProgress(source string, eventCh <-chan qrdetect.ProgressEvent) {
	spin := ui.NewSpinner("Rendering " + source + "...")
	var bar *ui.ProgressBar

	for event := range eventCh {
		switch event.Type {
		case qrdetect.EventStart:
			spin.Start()
		case qrdetect.EventRasterized:
			spin.Stop()
			bar = ui.NewProgressBar(int64(event.TotalPages), "Scanning pages")
		case qrdetect.EventPageComplete:
			if bar != nil {
				bar.Add(1)
			}
		case qrdetect.EventComplete:
			if bar != nil {
				bar.Finish()
			}
		}
	}
	spin.Stop()
}

func printSummary(result *qrdetect.DocumentResult) {
	ui.Section("Pages")

	rows := make([][]string, 0, len(result.PageData))
	for _, page := range result.PageData {
		status := "ok"
		decoded := strings.Join(page.DecodedInfo, ", ")
		if page.Failed() {
			status = "error"
			if page.ErrorStr != nil {
				decoded = *page.ErrorStr
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(page.PageIndex),
			strconv.Itoa(page.QRCount),
			status,
			ui.Truncate(decoded, 60),
		})
	}
	ui.Table(os.Stdout, []string{"Page", "QR codes", "Status", "Decoded"}, rows)

	ui.Section("Summary")
	ui.KeyValue("Pages processed", strconv.Itoa(result.PagesProcessed))
	ui.KeyValue("QR codes", strconv.Itoa(result.QRCount))
	ui.KeyValue("Page errors", strconv.Itoa(result.ErrorCount))
	ui.KeyValue("Processing time", fmt.Sprintf("%.0fs", result.ProcessingTime))
	fmt.Println()

	switch {
	case result.ErrorCount > 0:
		ui.Warning("%d page(s) could not be scanned", result.ErrorCount)
	case result.QRFound:
		ui.Success("Found %d QR code(s)", result.QRCount)
	default:
		ui.Success("No QR codes found")
	}
}
