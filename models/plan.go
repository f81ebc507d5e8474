package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known capability names
const (
	FeatureCampaigns  = "campaigns"
	FeatureReports    = "reports"
	FeatureAPIAccess  = "api_access"
	FeatureScheduling = "scheduling"
)

// FeatureMap maps capability names to their enabled flag
type FeatureMap map[string]bool

// Lookup returns the flag for name and whether it is defined at all
func (m FeatureMap) Lookup(name string) (enabled, defined bool) {
	if m == nil {
		return false, false
	}
	enabled, defined = m[name]
	return enabled, defined
}

// ParseFeatureMap decodes a JSON object of booleans.
// Anything other than an object of booleans (or JSON null) is rejected.
func ParseFeatureMap(raw []byte) (FeatureMap, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var m FeatureMap
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid feature map: %w", err)
	}
	if m == nil {
		m = FeatureMap{}
	}
	return m, nil
}

// Plan is a commercial plan carrying default capabilities
type Plan struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Features  FeatureMap `json:"features" db:"features"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Plan model
func (Plan) TableName() string {
	return "plans"
}
