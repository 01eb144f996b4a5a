package models

import "time"

// DocumentType names the regulatory documents tracked per shipment.
type DocumentType string

const (
	DocBillOfLading      DocumentType = "bill_of_lading"
	DocCommercialInvoice DocumentType = "commercial_invoice"
	DocPackingList       DocumentType = "packing_list"
	DocCertOfOrigin      DocumentType = "certificate_of_origin"
	DocPhytosanitary     DocumentType = "phytosanitary_certificate"
	DocVetHealth         DocumentType = "veterinary_health_certificate"
	DocEUTraces          DocumentType = "eu_traces"
	DocQuality           DocumentType = "quality_certificate"
	DocInsurance         DocumentType = "insurance_certificate"
	DocEUDRDueDiligence  DocumentType = "eudr_due_diligence"
	DocOther             DocumentType = "other"
)

// DocumentStatus is the document lifecycle state.
type DocumentStatus string

const (
	DocDraft             DocumentStatus = "draft"
	DocUploaded          DocumentStatus = "uploaded"
	DocPendingValidation DocumentStatus = "pending_validation"
	DocValidated         DocumentStatus = "validated"
	DocComplianceOK      DocumentStatus = "compliance_ok"
	DocComplianceFailed  DocumentStatus = "compliance_failed"
	DocLinked            DocumentStatus = "linked"
	DocArchived          DocumentStatus = "archived"
	DocRejected          DocumentStatus = "rejected"
	DocExpired           DocumentStatus = "expired"
)

// CanonicalData is the typed structured extraction attached to a document.
// Unknown fields from the classifier are preserved in Extra and never
// interpreted by the engine.
type CanonicalData struct {
	SchemaVersion  int            `json:"schemaVersion"`
	Shipper        string         `json:"shipper,omitempty"`
	Consignee      string         `json:"consignee,omitempty"`
	NotifyParty    string         `json:"notifyParty,omitempty"`
	BOLNumber      string         `json:"bolNumber,omitempty"`
	Containers     []string       `json:"containers,omitempty"`
	CargoLines     []CargoLine    `json:"cargoLines,omitempty"`
	PortOfLoading  string         `json:"portOfLoading,omitempty"`
	PortOfDischarge string        `json:"portOfDischarge,omitempty"`
	Vessel         string         `json:"vessel,omitempty"`
	Voyage         string         `json:"voyage,omitempty"`
	ShippedOnBoard *time.Time     `json:"shippedOnBoard,omitempty"`
	NetWeightKg    float64        `json:"netWeightKg,omitempty"`
	GrossWeightKg  float64        `json:"grossWeightKg,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// CargoLine is one cargo description row on a parsed document.
type CargoLine struct {
	Description   string  `json:"description"`
	Packages      int     `json:"packages,omitempty"`
	NetWeightKg   float64 `json:"netWeightKg,omitempty"`
	GrossWeightKg float64 `json:"grossWeightKg,omitempty"`
}

// Document is one uploaded trade document. Replacement creates a new row
// with SupersedesID set; only one primary exists per (shipment, type).
type Document struct {
	ID                 string         `json:"id"`
	ShipmentID         string         `json:"shipmentId"`
	OrganizationID     string         `json:"organizationId"`
	Type               DocumentType   `json:"documentType"`
	Status             DocumentStatus `json:"status"`
	FileName           string         `json:"fileName"`
	FilePath           string         `json:"filePath"` // blob key
	FileSize           int64          `json:"fileSize"`
	MimeType           string         `json:"mimeType"`
	Checksum           string         `json:"checksum,omitempty"` // sha256 of the stored bytes
	ReferenceNumber    string         `json:"referenceNumber,omitempty"`
	IssueDate          *time.Time     `json:"issueDate,omitempty"`
	ExpiryDate         *time.Time     `json:"expiryDate,omitempty"`
	IssuingAuthority   string         `json:"issuingAuthority,omitempty"`
	Canonical          *CanonicalData `json:"canonicalData,omitempty"`
	Version            int            `json:"version"`
	IsPrimary          bool           `json:"isPrimary"`
	SupersedesID       string         `json:"supersedesId,omitempty"`
	Confidence         float64        `json:"classificationConfidence,omitempty"`
	ParsedAt           *time.Time     `json:"parsedAt,omitempty"`
	LastValidatedAt    *time.Time     `json:"lastValidatedAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// DetectionMethod records how a sub-document was identified.
type DetectionMethod string

const (
	DetectionAI      DetectionMethod = "ai"
	DetectionKeyword DetectionMethod = "keyword"
	DetectionManual  DetectionMethod = "manual"
)

// DocumentContent is a logical sub-document inside a multi-document PDF.
type DocumentContent struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"documentId"`
	Type            DocumentType    `json:"documentType"`
	Status          DocumentStatus  `json:"status"`
	PageStart       int             `json:"pageStart"`
	PageEnd         int             `json:"pageEnd"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	DetectedFields  *CanonicalData  `json:"detectedFields,omitempty"`
	Confidence      float64         `json:"confidence"`
	Method          DetectionMethod `json:"detectionMethod"`
}

// Severity grades a rule failure.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// DocumentIssue is a persisted rule failure against a document. Overridden
// issues stay visible but stop contributing to the decision.
type DocumentIssue struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"documentId"`
	ShipmentID     string    `json:"shipmentId"`
	RuleID         string    `json:"ruleId"`
	RuleName       string    `json:"ruleName"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Field          string    `json:"field,omitempty"`
	ExpectedValue  string    `json:"expectedValue,omitempty"`
	ActualValue    string    `json:"actualValue,omitempty"`
	IsOverridden   bool      `json:"isOverridden"`
	OverriddenBy   string    `json:"overriddenBy,omitempty"`
	OverrideReason string    `json:"overrideReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ComplianceResult records one rule evaluation outcome.
type ComplianceResult struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId,omitempty"`
	ShipmentID string    `json:"shipmentId"`
	RuleID     string    `json:"ruleId"`
	Passed     bool      `json:"passed"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// ReferenceEntry detects duplicate uploads by document reference number.
type ReferenceEntry struct {
	ShipmentID      string       `json:"shipmentId"`
	ReferenceNumber string       `json:"referenceNumber"`
	DocumentType    DocumentType `json:"documentType"`
	FirstSeenAt     time.Time    `json:"firstSeenAt"`
}
