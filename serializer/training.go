package serializer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rushteam/dedupekit/core"
)

// WriteTraining 以 JSON 写出标注：{"match": [[a, b], ...], "distinct": [...]}。
func WriteTraining(w io.Writer, pairs core.TrainingPairs) error {
	if pairs.Match == nil {
		pairs.Match = []core.Example{}
	}
	if pairs.Distinct == nil {
		pairs.Distinct = []core.Example{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(pairs); err != nil {
		return fmt.Errorf("serializer: write training: %w", err)
	}
	return nil
}

// ReadTraining 读取 WriteTraining 写出的标注。
func ReadTraining(r io.Reader) (core.TrainingPairs, error) {
	var pairs core.TrainingPairs
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return core.TrainingPairs{}, core.WrapDomainError(core.ModuleSerializer, core.ErrorCodeInvalidInput, err,
			"serializer: read training")
	}
	return pairs, nil
}
