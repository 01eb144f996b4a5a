package bol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

// classifierResponseSchema pins the contract with the classification
// service. A response that fails validation is treated as a permanent
// upstream error rather than silently mis-parsed.
const classifierResponseSchema = `{
	"type": "object",
	"required": ["document_type", "confidence"],
	"properties": {
		"document_type": {"type": "string", "minLength": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"data": {
			"type": "object",
			"properties": {
				"shipper": {"type": "string"},
				"consignee": {"type": "string"},
				"notify_party": {"type": "string"},
				"bol_number": {"type": "string"},
				"containers": {"type": "array", "items": {"type": "string"}},
				"cargo_items": {"type": "array"},
				"port_of_loading": {"type": "string"},
				"port_of_discharge": {"type": "string"},
				"vessel": {"type": "string"},
				"voyage": {"type": "string"},
				"shipped_on_board": {"type": "string"},
				"net_weight_kg": {"type": "number"},
				"gross_weight_kg": {"type": "number"}
			}
		}
	}
}`

var responseSchema = jsonschema.MustCompileString("classifier-response.json", classifierResponseSchema)

// HTTPClassifier calls the external document classification service.
type HTTPClassifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClassifier builds the driver. timeout bounds one classification
// round trip including upload.
func NewHTTPClassifier(baseURL, apiKey string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type classifierResponse struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	Data         struct {
		Shipper         string             `json:"shipper"`
		Consignee       string             `json:"consignee"`
		NotifyParty     string             `json:"notify_party"`
		BOLNumber       string             `json:"bol_number"`
		Containers      []string           `json:"containers"`
		CargoItems      []models.CargoLine `json:"cargo_items"`
		PortOfLoading   string             `json:"port_of_loading"`
		PortOfDischarge string             `json:"port_of_discharge"`
		Vessel          string             `json:"vessel"`
		Voyage          string             `json:"voyage"`
		ShippedOnBoard  string             `json:"shipped_on_board"`
		NetWeightKg     float64            `json:"net_weight_kg"`
		GrossWeightKg   float64            `json:"gross_weight_kg"`
	} `json:"data"`
}

// Classify uploads the document and decodes the validated response.
func (c *HTTPClassifier) Classify(ctx context.Context, fileName string, content []byte) (*Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/classify", bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", fileName)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "bol.classify", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "bol.classify", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.New(apperr.KindUpstreamTransient, "bol.classify",
			fmt.Sprintf("classifier returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, apperr.New(apperr.KindUpstreamPermanent, "bol.classify",
			fmt.Sprintf("classifier rejected document: %d", resp.StatusCode))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamPermanent, "bol.classify", err)
	}
	if err := responseSchema.Validate(raw); err != nil {
		log.Warn().Err(err).Str("file", fileName).Msg("Classifier response failed schema validation")
		return nil, apperr.Wrap(apperr.KindUpstreamPermanent, "bol.classify", err)
	}

	var cr classifierResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamPermanent, "bol.classify", err)
	}
	data := &models.CanonicalData{
		SchemaVersion:   1,
		Shipper:         cr.Data.Shipper,
		Consignee:       cr.Data.Consignee,
		NotifyParty:     cr.Data.NotifyParty,
		BOLNumber:       cr.Data.BOLNumber,
		Containers:      cr.Data.Containers,
		CargoLines:      cr.Data.CargoItems,
		PortOfLoading:   cr.Data.PortOfLoading,
		PortOfDischarge: cr.Data.PortOfDischarge,
		Vessel:          cr.Data.Vessel,
		Voyage:          cr.Data.Voyage,
		NetWeightKg:     cr.Data.NetWeightKg,
		GrossWeightKg:   cr.Data.GrossWeightKg,
	}
	if cr.Data.ShippedOnBoard != "" {
		if t, err := time.Parse("2006-01-02", cr.Data.ShippedOnBoard); err == nil {
			data.ShippedOnBoard = &t
		} else if t, err := time.Parse(time.RFC3339, cr.Data.ShippedOnBoard); err == nil {
			data.ShippedOnBoard = &t
		}
	}
	return &Extraction{
		Type:       models.DocumentType(cr.DocumentType),
		Confidence: cr.Confidence,
		Method:     models.DetectionAI,
		Data:       data,
	}, nil
}
