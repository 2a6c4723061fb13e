package run

import (
	"fmt"

	"distreg/domain/core"
)

// RunManifest records what a run consumed and how it was configured. The run
// ID and timestamp identify the execution; only the fingerprint describes
// the results.
type RunManifest struct {
	RunID       core.RunID                `json:"run_id"`
	Study       string                    `json:"study"`
	Inputs      map[string]core.InputHash `json:"inputs"` // table name -> content hash
	ConfigHash  core.ConfigHash           `json:"config_hash"`
	CodeVersion string                    `json:"code_version"`
	Fingerprint RunFingerprint            `json:"fingerprint"`
	CreatedAt   core.Timestamp            `json:"created_at"`
}

// NewRunManifest hashes the study configuration and builds the manifest
func NewRunManifest(study string, inputs map[string]core.InputHash, config []byte, codeVersion string) *RunManifest {
	configHash := core.ConfigHash(core.NewHash(config))
	copied := make(map[string]core.InputHash, len(inputs))
	for name, h := range inputs {
		copied[name] = h
	}
	return &RunManifest{
		RunID:       core.NewRunID(),
		Study:       study,
		Inputs:      copied,
		ConfigHash:  configHash,
		CodeVersion: codeVersion,
		Fingerprint: NewRunFingerprint(copied, configHash, codeVersion),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (r *RunManifest) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return fmt.Errorf("run manifest: run_id cannot be empty")
	}
	if r.Study == "" {
		return fmt.Errorf("run manifest: study cannot be empty")
	}
	if len(r.Inputs) == 0 {
		return fmt.Errorf("run manifest: no inputs recorded")
	}
	if r.ConfigHash == "" {
		return fmt.Errorf("run manifest: config_hash cannot be empty")
	}
	if r.CodeVersion == "" {
		return fmt.Errorf("run manifest: code_version cannot be empty")
	}
	return nil
}
