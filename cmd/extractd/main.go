// extractd is the long-running extraction daemon: it drains pending jobs
// from the database through the pipeline worker pool and serves a gRPC
// health endpoint for probes.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/freightscan/invoice-extract/internal/async"
	"github.com/freightscan/invoice-extract/internal/blobstore"
	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/llm/gemini"
	"github.com/freightscan/invoice-extract/internal/ocr"
	txocr "github.com/freightscan/invoice-extract/internal/ocr/textract"
	"github.com/freightscan/invoice-extract/internal/pipeline"
	"github.com/freightscan/invoice-extract/internal/reconcile"
	"github.com/freightscan/invoice-extract/internal/repository"
	"github.com/freightscan/invoice-extract/internal/validation"
)

const intakePollInterval = 5 * time.Second

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config(cfg.Database), log)
	if err != nil {
		log.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout); err != nil {
		log.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	jobs := repository.NewJobRepository(pool, log)
	boxes := repository.NewBoxRepository(pool, log)
	invoices := repository.NewInvoiceRepository(pool, log)
	annotations := repository.NewAnnotationRepository(pool, log)

	var blobs blobstore.Store
	var recognizer ocr.TextRecognizer
	if cfg.Blob.LocalDir != "" {
		log.Warn("local blob store configured; textract requires S3", "dir", cfg.Blob.LocalDir)
		blobs = blobstore.NewLocalStore(cfg.Blob.LocalDir)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Blob.AWSRegion))
	if err != nil {
		log.Error("loading AWS config", "error", err)
		os.Exit(1)
	}
	if blobs == nil {
		blobs = blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Blob.Bucket)
	}
	recognizer = txocr.New(textract.NewFromConfig(awsCfg), txocr.Config{
		PollInterval: cfg.OCR.PollInterval,
		RatePerSec:   cfg.OCR.RatePerSec,
	}, log)

	extractor, err := gemini.New(ctx, gemini.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	}, log)
	if err != nil {
		log.Error("creating gemini client", "error", err)
		os.Exit(1)
	}

	tolerance, err := decimal.NewFromString(cfg.Validation.Tolerance)
	if err != nil {
		log.Error("invalid VALIDATION_TOLERANCE", "value", cfg.Validation.Tolerance, "error", err)
		os.Exit(1)
	}

	proc := pipeline.NewProcessor(pipeline.Deps{
		Jobs:        jobs,
		Boxes:       boxes,
		Invoices:    invoices,
		Annotations: annotations,
		Blobs:       blobs,
		Recognizer:  recognizer,
		Extractor:   extractor,
		Reconciler:  reconcile.New(reconcile.Config{}, log),
		Validator: validation.NewEngine(validation.Config{
			Tolerance:     tolerance,
			MaxPastWindow: cfg.Validation.MaxPastWindow,
			AllowFuture:   cfg.Validation.AllowFuture,
		}, log),
		OCRTimeout: cfg.OCR.Timeout,
		LLMTimeout: cfg.LLM.Timeout,
	}, cfg.Pipeline.RetryBackoff, log)

	queue := async.NewPipelineQueue(proc, log,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.OCR.Timeout+cfg.LLM.Timeout+time.Minute),
	)

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error("listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc serving", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		runIntake(gctx, jobs, queue, cfg.Pipeline.QueueSize, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		queue.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("daemon exited", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

// runIntake polls for pending jobs and feeds them to the worker pool. A job
// stays pending until a worker picks it up, so the poller remembers what it
// already enqueued and forgets ids as soon as they leave the pending set.
func runIntake(ctx context.Context, jobs repository.JobRepository, queue async.Queue, batch int, log *slog.Logger) {
	if batch <= 0 {
		batch = 64
	}
	seen := make(map[uuid.UUID]struct{})
	ticker := time.NewTicker(intakePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pending, err := jobs.ListPending(ctx, batch)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("intake poll failed", "error", err)
			}
			continue
		}
		next := make(map[uuid.UUID]struct{}, len(pending))
		for _, job := range pending {
			next[job.ID] = struct{}{}
			if _, already := seen[job.ID]; already {
				continue
			}
			_ = queue.Enqueue(ctx, async.Job{
				JobID:       job.ID,
				SubmittedAt: time.Now().UTC(),
			})
		}
		seen = next
	}
}
