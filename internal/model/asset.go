// Package model holds the persisted records shared by discovery, strategies
// and the migration orchestrator.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetType classifies a discovered resource.
type AssetType string

// Asset types.
const (
	AssetVM          AssetType = "vm"
	AssetContainer   AssetType = "container"
	AssetDatabase    AssetType = "database"
	AssetStorage     AssetType = "storage"
	AssetNetwork     AssetType = "network"
	AssetApplication AssetType = "application"
	AssetServerless  AssetType = "serverless"
)

// assetNamespace seeds deterministic asset ids.
var assetNamespace = uuid.MustParse("6f1c0a52-3b7e-4d0c-9a55-2f4b8e1d7c90")

// AssetID derives the stable id of the asset discovered as sourceID in projectID.
func AssetID(projectID, sourceID string) string {
	return uuid.NewSHA1(assetNamespace, []byte(projectID+"/"+sourceID)).String()
}

// Asset is a discovered resource enriched with planning data.
type Asset struct {
	ID                       string            `json:"id"`
	ProjectID                string            `json:"project_id"`
	Name                     string            `json:"name"`
	Type                     AssetType         `json:"asset_type"`
	SourceID                 string            `json:"source_id"`
	CurrentProvider          string            `json:"current_provider"`
	Region                   string            `json:"region,omitempty"`
	Specs                    map[string]any    `json:"specs"`
	Configuration            map[string]any    `json:"configuration"`
	Tags                     map[string]string `json:"tags"`
	RecommendedStrategy      string            `json:"recommended_strategy,omitempty"`
	RecommendationConfidence float64           `json:"recommendation_confidence,omitempty"`
	TargetProvider           string            `json:"target_provider,omitempty"`
	TargetSpecs              map[string]any    `json:"target_specs,omitempty"`
	DiscoveredAt             time.Time         `json:"discovered_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// SpecInt reads an integer spec, tolerating JSON float decoding.
func (a *Asset) SpecInt(key string, def int) int {
	switch v := a.Specs[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// SpecFloat reads a numeric spec.
func (a *Asset) SpecFloat(key string, def float64) float64 {
	switch v := a.Specs[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// SpecString reads a string spec.
func (a *Asset) SpecString(key string) string {
	s, _ := a.Specs[key].(string)
	return s
}

// ConfigString reads a string configuration value.
func (a *Asset) ConfigString(key string) string {
	s, _ := a.Configuration[key].(string)
	return s
}

// Clone returns a deep copy so stored records are never aliased. Numeric
// specs come back as float64, as they do from any JSON-backed store.
func (a *Asset) Clone() *Asset {
	data, err := json.Marshal(a)
	if err != nil {
		panic(fmt.Sprintf("asset %s is not serialisable: %v", a.ID, err))
	}
	var out Asset
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("asset %s is not serialisable: %v", a.ID, err))
	}
	return &out
}
