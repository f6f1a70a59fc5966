// Package textract implements ocr.TextRecognizer on Amazon Textract's
// asynchronous document text detection API.
package textract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"golang.org/x/time/rate"

	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/ocr"
)

type Config struct {
	PollInterval time.Duration // default 2s
	RatePerSec   float64       // poll request budget, default 2/s
}

type Client struct {
	tx      *textract.Client
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(tx *textract.Client, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	return &Client{
		tx:      tx,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     logger,
	}
}

// Recognize starts an async Textract job against the S3 object and polls it
// to completion. Provider and timeout failures surface as ProviderError.
func (c *Client) Recognize(ctx context.Context, doc ocr.Document) (map[int][]entity.BoundingBox, error) {
	start, err := c.tx.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(doc.Bucket),
				Name:   aws.String(doc.Key),
			},
		},
	})
	if err != nil {
		return nil, &common.ProviderError{Provider: "textract", Message: "start text detection", Cause: err}
	}
	jobID := aws.ToString(start.JobId)
	c.log.Info("textract.job.started", "textract_job_id", jobID, "key", doc.Key)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := c.tx.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId: aws.String(jobID),
		})
		if err != nil {
			return nil, &common.ProviderError{Provider: "textract", Message: "poll text detection", Cause: err}
		}
		switch out.JobStatus {
		case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
			return c.collectPages(ctx, jobID, out)
		case types.JobStatusFailed:
			msg := aws.ToString(out.StatusMessage)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, &common.ProviderError{
				Provider: "textract",
				Message:  fmt.Sprintf("job %s failed: %s", jobID, msg),
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// collectPages drains the paginated result set and converts blocks to boxes.
func (c *Client) collectPages(ctx context.Context, jobID string, first *textract.GetDocumentTextDetectionOutput) (map[int][]entity.BoundingBox, error) {
	pages := make(map[int][]entity.BoundingBox)
	appendBlocks(pages, first.Blocks)

	next := first.NextToken
	for next != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := c.tx.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return nil, &common.ProviderError{Provider: "textract", Message: "page results", Cause: err}
		}
		appendBlocks(pages, out.Blocks)
		next = out.NextToken
	}

	total := 0
	for _, boxes := range pages {
		total += len(boxes)
	}
	c.log.Info("textract.job.done", "textract_job_id", jobID, "pages", len(pages), "boxes", total)
	return pages, nil
}

// appendBlocks converts LINE blocks to pixel-space boxes on the fixed page
// raster. WORD blocks repeat the same text and are skipped. Textract reports
// geometry as 0..1 ratios and confidence as a percentage.
func appendBlocks(pages map[int][]entity.BoundingBox, blocks []types.Block) {
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeLine {
			continue
		}
		if b.Geometry == nil || len(b.Geometry.Polygon) == 0 {
			continue
		}
		minX, minY := float64(b.Geometry.Polygon[0].X), float64(b.Geometry.Polygon[0].Y)
		maxX, maxY := minX, minY
		for _, p := range b.Geometry.Polygon[1:] {
			x, y := float64(p.X), float64(p.Y)
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
		page := 1
		if b.Page != nil {
			page = int(*b.Page)
		}
		conf := 0.0
		if b.Confidence != nil {
			conf = float64(*b.Confidence) / 100.0
		}
		pages[page] = append(pages[page], entity.BoundingBox{
			Page:       page,
			Left:       int(minX * entity.PageRasterWidth),
			Top:        int(minY * entity.PageRasterHeight),
			Width:      int((maxX - minX) * entity.PageRasterWidth),
			Height:     int((maxY - minY) * entity.PageRasterHeight),
			Text:       aws.ToString(b.Text),
			Confidence: conf,
		})
	}
}
