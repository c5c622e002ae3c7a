package salesforce

import (
	"bytes"
	"encoding/json"
)

// Credentials authenticate against the remote service. A non-empty AccessToken together
// with InstanceURL is used as is; otherwise the username-password OAuth2 flow is run.
type Credentials struct {
	Username      string
	Password      string
	SecurityToken string
	ClientID      string
	ClientSecret  string
	AccessToken   string
	InstanceURL   string
}

func (c Credentials) HasStaticToken() bool {
	return c.AccessToken != "" && c.InstanceURL != ""
}

// FieldMetadata is the subset of a remote field description the sync engine relies on.
type FieldMetadata struct {
	Name              string `json:"name"`
	Label             string `json:"label"`
	Type              string `json:"type"`
	Nillable          bool   `json:"nillable"`
	Calculated        bool   `json:"calculated"`
	CompoundFieldName string `json:"compoundFieldName"`
	Length            int    `json:"length"`
}

type describeResponse struct {
	Name   string          `json:"name"`
	Fields []FieldMetadata `json:"fields"`
}

// Record is one remote row keyed by field name. Numbers are kept as json.Number.
type Record map[string]any

// QueryResult is one page of a remote query.
type QueryResult struct {
	Done           bool
	TotalSize      int
	NextRecordsURL string
	Records        []Record
}

var knownQueryAttributes = map[string]struct{}{
	"done":           {},
	"nextRecordsUrl": {},
	"records":        {},
	"totalSize":      {},
}

type queryResponse struct {
	Done           bool     `json:"done"`
	TotalSize      int      `json:"totalSize"`
	NextRecordsURL string   `json:"nextRecordsUrl"`
	Records        []Record `json:"records"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func decodeInto(body []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(target)
}
