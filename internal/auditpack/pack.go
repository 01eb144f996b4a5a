package auditpack

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// zipEpoch is the fixed timestamp stamped on every archive entry so the
// same inputs yield the same archive bytes. The ZIP format cannot
// represent dates before 1980.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is one file destined for the archive.
type Entry struct {
	Name string
	Body []byte
}

// ArchiveName returns the pack file name for a shipment reference.
func ArchiveName(reference string) string {
	return reference + "-audit-pack.zip"
}

// BuildArchive assembles the deterministic ZIP from pre-rendered
// entries. Entries are written in the order given with fixed headers;
// callers produce them with BuildEntries.
func BuildArchive(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Body); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// FileFetcher resolves a document's blob key to its bytes.
type FileFetcher func(key string) (io.ReadCloser, error)

// BuildEntries renders the full archive content in its canonical order:
// index PDF, primary documents, tracking log, metadata.
func BuildEntries(data *Data, fetch FileFetcher) ([]Entry, error) {
	indexPDF, err := BuildIndexPDF(data)
	if err != nil {
		return nil, err
	}
	entries := []Entry{{Name: "00-SHIPMENT-INDEX.pdf", Body: indexPDF}}

	for i, doc := range data.Documents {
		rc, err := fetch(doc.FilePath)
		if err != nil {
			return nil, fmt.Errorf("fetch document %s: %w", doc.ID, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
		}
		ext := path.Ext(doc.FileName)
		if ext == "" {
			ext = ".pdf"
		}
		entries = append(entries, Entry{
			Name: fmt.Sprintf("%02d-%s%s", i+1, Slug(doc.Type), ext),
			Body: body,
		})
	}

	trackingLog, err := renderTrackingLog(data.Events)
	if err != nil {
		return nil, err
	}
	entries = append(entries, Entry{Name: "container-tracking-log.json", Body: trackingLog})

	metadata, err := renderMetadata(data)
	if err != nil {
		return nil, err
	}
	entries = append(entries, Entry{Name: "metadata.json", Body: metadata})
	return entries, nil
}

func renderTrackingLog(events []*models.ContainerEvent) ([]byte, error) {
	type logEntry struct {
		EventStatus  string    `json:"event_status"`
		EventTime    time.Time `json:"event_time"`
		LocationCode string    `json:"location_code,omitempty"`
		LocationName string    `json:"location_name,omitempty"`
		Vessel       string    `json:"vessel,omitempty"`
		Voyage       string    `json:"voyage,omitempty"`
		Source       string    `json:"source"`
	}
	out := make([]logEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, logEntry{
			EventStatus:  string(ev.Status),
			EventTime:    ev.EventTime.UTC(),
			LocationCode: ev.LocationCode,
			LocationName: ev.LocationName,
			Vessel:       ev.Vessel,
			Voyage:       ev.Voyage,
			Source:       ev.Source,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tracking log: %w", err)
	}
	return b, nil
}

// metadata is the machine-readable pack manifest.
type metadata struct {
	Shipment       *models.Shipment   `json:"shipment"`
	Products       []*models.Product  `json:"products"`
	Documents      []documentMeta     `json:"documents"`
	Decision       string             `json:"decision"`
	EUDRApplicable bool               `json:"eudr_applicable"`
	EventCount     int                `json:"event_count"`
	IssueCount     int                `json:"issue_count"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

type documentMeta struct {
	ID              string     `json:"id"`
	Type            string     `json:"document_type"`
	FileName        string     `json:"file_name"`
	Checksum        string     `json:"checksum,omitempty"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	IssueDate       *time.Time `json:"issue_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Version         int        `json:"version"`
}

func renderMetadata(data *Data) ([]byte, error) {
	m := metadata{
		Shipment:       data.Shipment,
		Products:       data.Products,
		Decision:       data.Decision,
		EUDRApplicable: data.EUDRApplicable(),
		EventCount:     len(data.Events),
		IssueCount:     len(data.Issues),
		GeneratedAt:    data.GeneratedAt.UTC(),
	}
	for _, d := range data.Documents {
		m.Documents = append(m.Documents, documentMeta{
			ID:              d.ID,
			Type:            string(d.Type),
			FileName:        d.FileName,
			Checksum:        d.Checksum,
			ReferenceNumber: d.ReferenceNumber,
			IssueDate:       d.IssueDate,
			ExpiryDate:      d.ExpiryDate,
			Version:         d.Version,
		})
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
