package preprocessing

import (
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
)

// Validate runs the pre-flight checks that gate a submission. Rules are
// checked in order and the first failure is returned. Deeper checks, such as
// the target column existing in every dataset, belong to the execution
// service.
func Validate(cfg preprocess.Config, datasets []dataset.Handle, modes preprocess.SubsetModes) error {
	if len(datasets) == 0 {
		return errors.ErrNoDatasets
	}
	if cfg.EncodingMethod.RequiresTarget() && cfg.TargetColumn == "" {
		return errors.ErrMissingTargetColumn
	}
	if cfg.ScalingEnabled && modes.Scaling && len(cfg.ScalingColumns) == 0 {
		return errors.ErrEmptyScalingSubset
	}
	if modes.Encoding && len(cfg.EncodingColumns) == 0 {
		return errors.ErrEmptyEncodingSubset
	}
	return nil
}

// ValidateSnapshot is Validate over a snapshot.
func ValidateSnapshot(snap preprocess.Snapshot, datasets []dataset.Handle) error {
	return Validate(snap.Config, datasets, snap.Modes)
}
