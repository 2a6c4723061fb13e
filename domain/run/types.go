package run

import (
	"fmt"

	"distreg/domain/core"
)

// RunFingerprint identifies everything that determines a run's outputs.
// Two runs with equal fingerprints produce byte-identical artifacts.
type RunFingerprint struct {
	InputSetHash core.Hash       `json:"input_set_hash"`
	ConfigHash   core.ConfigHash `json:"config_hash"`
	CodeVersion  string          `json:"code_version"`
	Fingerprint  core.Hash       `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from the determinism parameters
func NewRunFingerprint(inputs map[string]core.InputHash, configHash core.ConfigHash, codeVersion string) RunFingerprint {
	inputSet := core.ComputeInputSetHash(inputs)
	return RunFingerprint{
		InputSetHash: inputSet,
		ConfigHash:   configHash,
		CodeVersion:  codeVersion,
		Fingerprint:  computeRunFingerprint(inputSet, configHash, codeVersion),
	}
}

func computeRunFingerprint(inputSet core.Hash, configHash core.ConfigHash, codeVersion string) core.Hash {
	data := fmt.Sprintf("inputs:%s|config:%s|code:%s", inputSet, configHash, codeVersion)
	return core.NewHash([]byte(data))
}

// Matches reports whether other would reproduce the same outputs
func (f RunFingerprint) Matches(other RunFingerprint) bool {
	return f.Fingerprint == other.Fingerprint
}
