package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainPlan    = "orbit/plan/v1"
	DomainResults = "orbit/results/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanHash computes the content address of a plan. Two plans with the same
// name, start, duration and directives hash identically regardless of map
// iteration order or Unicode normalization.
func PlanHash(p Plan) (string, error) {
	canonical, err := MarshalCanonical(p.ToValue())
	if err != nil {
		return "", fmt.Errorf("PlanHash: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// ResultsKey identifies the results of simulating planHash against a given
// model and sampling configuration. It keys the results cache.
func ResultsKey(planHash, model, modelVersion string, samplingPeriod int64) (string, error) {
	obj := Map{
		"plan":            String(planHash),
		"model":           String(model),
		"model_version":   String(modelVersion),
		"sampling_period": Int(samplingPeriod),
		"engine_version":  String(EngineVersion),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ResultsKey: %w", err)
	}
	return hashWithDomain(DomainResults, canonical), nil
}

// MustPlanHash is like PlanHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPlanHash(p Plan) string {
	h, err := PlanHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
