package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// ServiceForm is the service intake submitted by a verified user.
type ServiceForm struct {
	OrganisationName          string `json:"organisation_name"`
	ServiceName               string `json:"service_name"`
	CampusName                string `json:"campus_name"`
	Phone                     string `json:"phone"`
	Email                     string `json:"email"`
	Website                   string `json:"website"`
	Address                   string `json:"address"`
	Suburb                    string `json:"suburb"`
	State                     string `json:"state"`
	Postcode                  string `json:"postcode"`
	EligibilityAndDescription string `json:"eligibility_and_description"`
}

// Payload returns the form as a flat record without blank fields.
func (f ServiceForm) Payload() map[string]any {
	fields := map[string]any{
		"organisation_name":           f.OrganisationName,
		"service_name":                f.ServiceName,
		"campus_name":                 f.CampusName,
		"phone":                       f.Phone,
		"email":                       f.Email,
		"website":                     f.Website,
		"address":                     f.Address,
		"suburb":                      f.Suburb,
		"state":                       f.State,
		"postcode":                    f.Postcode,
		"eligibility_and_description": f.EligibilityAndDescription,
	}
	return DropEmpty(fields)
}

// DropEmpty removes null entries and strings that are blank after trimming.
// Other values are kept as they are.
func DropEmpty(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// IngestResult is the ingestion API's answer to a JSON submission.
type IngestResult struct {
	Status      string   `json:"status"` // "created" or "error"
	ReferenceID string   `json:"reference_id"`
	Message     string   `json:"message"`
	Warnings    []string `json:"warnings"`
	Errors      []string `json:"errors"`
}

// Created reports whether the service record was stored.
func (r IngestResult) Created() bool { return r.Status == "created" }

// TextExtraction is the preview produced from a free-text description.
type TextExtraction struct {
	ExtractedPayload   map[string]any `json:"extracted_payload"`
	MissingFields      []string       `json:"missing_fields"`
	ExtractionWarnings []string       `json:"extraction_warnings"`
}

// Forwarded is an upstream answer passed through as-is.
type Forwarded struct {
	Status int
	Body   json.RawMessage
}

// Ingestion talks to the service ingestion API.
type Ingestion struct {
	base
}

func NewIngestion(baseURL string, httpClient *http.Client) *Ingestion {
	return &Ingestion{base: newBase("Ingestion", baseURL, httpClient)}
}

// ForwardJSON posts payload to /ingest/json on behalf of userEmail and returns
// the upstream status and body untouched.
func (i *Ingestion) ForwardJSON(ctx context.Context, payload map[string]any, userEmail string) (*Forwarded, error) {
	header := http.Header{}
	if userEmail != "" {
		header.Set("X-User-Email", userEmail)
	}
	resp, err := i.do(ctx, http.MethodPost, "/ingest/json", nil, header, DropEmpty(payload))
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body) {
		return nil, &Error{API: i.api, Status: resp.Status, Body: resp.Body}
	}
	return &Forwarded{Status: resp.Status, Body: resp.Body}, nil
}

// IngestText extracts a structured record from a free-text description. It
// does not store anything upstream.
func (i *Ingestion) IngestText(ctx context.Context, text string) (*TextExtraction, error) {
	var res TextExtraction
	if err := i.doJSON(ctx, http.MethodPost, "/ingest/text", map[string]string{"text_input": text}, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
