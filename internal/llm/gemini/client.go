// Package gemini implements llm.FieldExtractor on Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/freightscan/invoice-extract/internal/common"
	"github.com/freightscan/invoice-extract/internal/entity"
	"github.com/freightscan/invoice-extract/internal/llm"
)

type Config struct {
	Model       string // default "gemini-2.5-flash"
	APIKey      string
	Temperature float32
}

type Client struct {
	client *genai.Client
	cfg    Config
	log    *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, cfg: cfg, log: logger}, nil
}

// ExtractFields sends the OCR text with a schema-constrained prompt and parses
// the structured response. Schema-invalid output gets one lenient
// sanitize-and-revalidate pass before surfacing as a retryable ParseError.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (entity.FreightInvoice, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.OCRText),
		"ocr_confidence", req.OCRConfidence,
	)

	schema := llm.BuildInvoiceJSONSchema()
	schemaJSON, _ := json.Marshal(schema)
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req) + "\n\nJSON Schema:\n" + string(schemaJSON)

	temp := c.cfg.Temperature
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(sys)}},
			Temperature:       &temp,
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		c.log.Error("llm.extract.provider_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.FreightInvoice{}, nil, &common.ProviderError{Provider: "gemini", Message: "generate content", Cause: err}
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return entity.FreightInvoice{}, nil, &common.ProviderError{Provider: "gemini", Message: "empty response"}
	}
	rawContent := []byte(stripFences(content))

	// Validate strictly first; on failure try a lenient sanitize once.
	if err := llm.CheckAgainstSchema(schema, rawContent); err != nil {
		cleaned, notes, sErr := llm.NormalizeAndSanitizeJSON(rawContent, c.log)
		if sErr != nil {
			c.log.Error("llm.extract.sanitize_failed", "req_id", rid, "error", sErr)
			return entity.FreightInvoice{}, rawContent, &common.ParseError{Provider: "gemini", RawResponse: rawContent, Cause: sErr}
		}
		if vErr := llm.CheckAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return entity.FreightInvoice{}, rawContent, &common.ParseError{Provider: "gemini", RawResponse: rawContent, Cause: vErr}
		}
		c.log.Warn("llm.extract.lenient_sanitize_applied", "req_id", rid, "changes", notes)
		rawContent = cleaned
	}

	var out entity.FreightInvoice
	if err := json.Unmarshal(rawContent, &out); err != nil {
		return entity.FreightInvoice{}, rawContent, &common.ParseError{Provider: "gemini", RawResponse: rawContent, Cause: err}
	}
	out.ExtractionTimestamp = time.Now().UTC()
	out.SourceFile = req.FileNameHint

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"invoice", out.InvoiceNumber,
		"vendor", out.VendorName,
		"total", out.TotalAmount,
		"currency", out.Currency,
		"confidence", out.ExtractionConfidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
