package app

import (
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/internal/preprocessing"
)

// Column kinds accepted by ToggleColumn
const (
	ColumnKindScaling  = "scaling"
	ColumnKindEncoding = "encoding"
)

// ConfigPatch is a partial configuration update. Nil fields are left alone.
type ConfigPatch struct {
	MissingStrategy *string   `json:"missing_strategy,omitempty"`
	ScalingEnabled  *bool     `json:"scaling_enabled,omitempty"`
	ScalingSubset   *bool     `json:"scaling_subset,omitempty"`
	ScalingColumns  *[]string `json:"scaling_columns,omitempty"`
	EncodingMethod  *string   `json:"encoding_method,omitempty"`
	EncodingSubset  *bool     `json:"encoding_subset,omitempty"`
	EncodingColumns *[]string `json:"encoding_columns,omitempty"`
	TargetColumn    *string   `json:"target_column,omitempty"`
}

func (p ConfigPatch) check() error {
	if p.MissingStrategy != nil {
		if _, err := preprocess.ParseMissingStrategy(*p.MissingStrategy); err != nil {
			return errors.InvalidInput(err.Error())
		}
	}
	if p.EncodingMethod != nil {
		if _, err := preprocess.ParseEncodingMethod(*p.EncodingMethod); err != nil {
			return errors.InvalidInput(err.Error())
		}
	}
	return nil
}

// apply assumes check has passed
func (p ConfigPatch) apply(state *preprocessing.State) {
	if p.MissingStrategy != nil {
		ms, _ := preprocess.ParseMissingStrategy(*p.MissingStrategy)
		state.SetMissingStrategy(ms)
	}
	if p.ScalingEnabled != nil {
		state.SetScaling(*p.ScalingEnabled)
	}
	if p.ScalingSubset != nil {
		state.SetScalingSubsetMode(*p.ScalingSubset)
	}
	if p.ScalingColumns != nil {
		state.SetScalingColumns(*p.ScalingColumns)
	}
	if p.EncodingMethod != nil {
		em, _ := preprocess.ParseEncodingMethod(*p.EncodingMethod)
		state.SetEncodingMethod(em)
	}
	if p.EncodingSubset != nil {
		state.SetEncodingSubsetMode(*p.EncodingSubset)
	}
	if p.EncodingColumns != nil {
		state.SetEncodingColumns(*p.EncodingColumns)
	}
	if p.TargetColumn != nil {
		state.SetTargetColumn(*p.TargetColumn)
	}
}
