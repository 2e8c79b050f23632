package model

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// InvestorWeight is reference data consumed read-only by the scorer.
type InvestorWeight struct {
	Investor string  `json:"investor" yaml:"investor"`
	Tier     int     `json:"tier" yaml:"tier"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// Source is a content source with its credibility score in [0,1].
type Source struct {
	ID          string  `json:"id" yaml:"id"`
	Reliability float64 `json:"reliability" yaml:"reliability"`
}

// DefaultInvestorWeights returns the built-in VC tier table used when no
// reference file is configured.
func DefaultInvestorWeights() []InvestorWeight {
	return []InvestorWeight{
		{Investor: "Paradigm", Tier: 1, Weight: 10},
		{Investor: "a16z Crypto", Tier: 1, Weight: 10},
		{Investor: "Polychain Capital", Tier: 1, Weight: 10},
		{Investor: "Binance Labs", Tier: 2, Weight: 8},
		{Investor: "Coinbase Ventures", Tier: 2, Weight: 8},
		{Investor: "Multicoin Capital", Tier: 2, Weight: 8},
		{Investor: "OKX Ventures", Tier: 3, Weight: 5},
		{Investor: "Dragonfly", Tier: 3, Weight: 5},
		{Investor: "Robot Ventures", Tier: 3, Weight: 5},
	}
}

// LoadInvestorWeights reads a YAML investor weight table from path.
func LoadInvestorWeights(path string) ([]InvestorWeight, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read investor weights %s", path)
	}

	var weights []InvestorWeight
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return nil, eris.Wrapf(err, "model: parse investor weights %s", path)
	}
	return weights, nil
}

// LoadSources reads a YAML source reliability table from path.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read sources %s", path)
	}

	var sources []Source
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, eris.Wrapf(err, "model: parse sources %s", path)
	}
	return sources, nil
}

// InvestorLookup builds a casefolded name → weight map for matching
// extracted vc_backing entries against the reference table.
func InvestorLookup(weights []InvestorWeight) map[string]float64 {
	lookup := make(map[string]float64, len(weights))
	for _, w := range weights {
		lookup[strings.ToLower(strings.TrimSpace(w.Investor))] = w.Weight
	}
	return lookup
}
