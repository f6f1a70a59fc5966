// extract runs a single document through the full pipeline from the command
// line: upload, OCR, field extraction, reconciliation, optional approval,
// and export. Useful for smoke-testing a deployment end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/freightscan/invoice-extract/internal/blobstore"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/export"
	"github.com/freightscan/invoice-extract/internal/llm/gemini"
	txocr "github.com/freightscan/invoice-extract/internal/ocr/textract"
	"github.com/freightscan/invoice-extract/internal/pipeline"
	"github.com/freightscan/invoice-extract/internal/reconcile"
	"github.com/freightscan/invoice-extract/internal/repository"
	"github.com/freightscan/invoice-extract/internal/validation"
)

func main() {
	var (
		filePath = flag.String("file", "", "path to the invoice PDF (required)")
		approve  = flag.Bool("approve", false, "approve without manual review and export")
		outDir   = flag.String("out", ".", "directory for exported files")
		format   = flag.String("format", "json", "export format: json or xlsx")
	)
	flag.Parse()
	if *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, *filePath, *approve, *outDir, *format); err != nil {
		log.Error("extract failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, log *slog.Logger, filePath string, approve bool, outDir, format string) error {
	pool, err := repository.Open(ctx, repository.Config(cfg.Database), log)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs := repository.NewJobRepository(pool, log)
	boxes := repository.NewBoxRepository(pool, log)
	invoices := repository.NewInvoiceRepository(pool, log)
	annotations := repository.NewAnnotationRepository(pool, log)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Blob.AWSRegion))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	blobs := blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Blob.Bucket)

	extractor, err := gemini.New(ctx, gemini.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	}, log)
	if err != nil {
		return err
	}

	tolerance, err := decimal.NewFromString(cfg.Validation.Tolerance)
	if err != nil {
		return fmt.Errorf("invalid VALIDATION_TOLERANCE %q: %w", cfg.Validation.Tolerance, err)
	}

	proc := pipeline.NewProcessor(pipeline.Deps{
		Jobs:        jobs,
		Boxes:       boxes,
		Invoices:    invoices,
		Annotations: annotations,
		Blobs:       blobs,
		Recognizer: txocr.New(textract.NewFromConfig(awsCfg), txocr.Config{
			PollInterval: cfg.OCR.PollInterval,
			RatePerSec:   cfg.OCR.RatePerSec,
		}, log),
		Extractor:  extractor,
		Reconciler: reconcile.New(reconcile.Config{}, log),
		Validator: validation.NewEngine(validation.Config{
			Tolerance:     tolerance,
			MaxPastWindow: cfg.Validation.MaxPastWindow,
			AllowFuture:   cfg.Validation.AllowFuture,
		}, log),
		OCRTimeout: cfg.OCR.Timeout,
		LLMTimeout: cfg.LLM.Timeout,
	}, cfg.Pipeline.RetryBackoff, log)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	fileName := filepath.Base(filePath)
	blobKey := fmt.Sprintf("uploads/%d-%s", time.Now().Unix(), fileName)
	if err := blobs.Write(ctx, blobKey, data, "application/pdf"); err != nil {
		return err
	}

	job, err := jobs.Create(ctx, fileName, blobKey, cfg.OCR.Provider, cfg.LLM.Provider)
	if err != nil {
		return err
	}
	fmt.Printf("job %s created for %s\n", job.ID, fileName)

	if err := proc.Process(ctx, job.ID); err != nil {
		return err
	}

	state, err := proc.Review(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("extracted %d fields (quality %.2f):\n", len(state.Annotations), deref(state.Job.QualityScore))
	for _, a := range state.Annotations {
		fmt.Printf("  %-28s %-32q conf=%.2f regions=%d\n",
			a.FieldName, a.ExtractedValue, a.Confidence, len(a.Regions))
	}

	if !approve {
		fmt.Println("job left in review; approve it to complete and export")
		return nil
	}

	violations, err := proc.Approve(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, v := range violations {
		fmt.Printf("violation: %s\n", v)
	}

	svc := export.NewService(jobs, invoices, annotations, log)
	var out []byte
	var ext string
	switch format {
	case "xlsx":
		out, err = svc.ExportInvoiceXLSX(ctx, job.ID)
		ext = "xlsx"
	default:
		out, err = svc.ExportInvoiceJSON(ctx, job.ID)
		ext = "json"
	}
	if err != nil {
		return err
	}
	target := filepath.Join(outDir, fmt.Sprintf("%s.%s", job.ID, ext))
	if err := os.WriteFile(target, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", target)
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
