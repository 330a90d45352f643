package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is one collection entry: its detail-page URL, extracted metadata and
// the download links found on the page.
type Item struct {
	ID     string `json:"-"`
	URL    string `json:"item_url"`
	Title  string `json:"title"`
	Fields Fields `json:"fields"`
	Links  Links  `json:"links"`
}

// Links holds the up-to-three derivative download URLs for an item. Absent
// roles are omitted from metadata.json.
type Links struct {
	Native    string `json:"native,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// ForRole returns the link URL for an asset role.
func (l Links) ForRole(role AssetRole) string {
	switch role {
	case RoleNative:
		return l.Native
	case RoleMedium:
		return l.Medium
	case RoleThumbnail:
		return l.Thumbnail
	}
	return ""
}

// Field is one labeled metadata value from an item page.
type Field struct {
	Label string
	Value string
}

// Fields preserves the page order of metadata labels. A repeated label keeps
// its original position but takes the last-seen value.
type Fields []Field

// Set inserts or updates a label.
func (f *Fields) Set(label, value string) {
	for i := range *f {
		if (*f)[i].Label == label {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Label: label, Value: value})
}

// Get returns the value for a label and whether it is present.
func (f Fields) Get(label string) (string, bool) {
	for _, fld := range f {
		if fld.Label == label {
			return fld.Value, true
		}
	}
	return "", false
}

// MarshalJSON serializes fields as a JSON object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(fld.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fld.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a JSON object; label order follows the document.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected JSON object, got %v", tok)
	}
	*f = (*f)[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		f.Set(key, value)
	}
	_, err = dec.Token() // closing brace
	return err
}

// AssetRole identifies one of the three per-item derivatives.
type AssetRole string

const (
	RoleNative    AssetRole = "native"
	RoleMedium    AssetRole = "medium"
	RoleThumbnail AssetRole = "thumbnail"
)

// OutcomeStatus is the per-role result of an acquisition attempt.
type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeSkipped OutcomeStatus = "skipped-exists"
	OutcomeAbsent  OutcomeStatus = "absent"
	OutcomeError   OutcomeStatus = "error"
)

// RoleOutcome records what happened to one asset role.
type RoleOutcome struct {
	Status OutcomeStatus
	Reason string
}

func (o RoleOutcome) String() string {
	if o.Status == OutcomeError && o.Reason != "" {
		return fmt.Sprintf("error: %s", o.Reason)
	}
	return string(o.Status)
}

// AcquisitionResult is the per-item outcome record, used for run-level
// reporting only.
type AcquisitionResult struct {
	ItemID  string
	ItemURL string
	Roles   map[AssetRole]RoleOutcome
}

// NewAcquisitionResult creates an empty result for an item.
func NewAcquisitionResult(id, url string) *AcquisitionResult {
	return &AcquisitionResult{
		ItemID:  id,
		ItemURL: url,
		Roles:   make(map[AssetRole]RoleOutcome),
	}
}

// Record sets the outcome for a role.
func (r *AcquisitionResult) Record(role AssetRole, status OutcomeStatus, reason string) {
	r.Roles[role] = RoleOutcome{Status: status, Reason: reason}
}

// ItemFailure names a failed item for the run summary.
type ItemFailure struct {
	ItemID string
	Reason string
}

// RunSummary is the completion report for a full run.
type RunSummary struct {
	TotalItems     int
	Succeeded      int
	Skipped        int
	Failed         []ItemFailure
	ValidNative    int
	TokenRefreshes int
	Interrupted    bool
}
