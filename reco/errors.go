package reco

import "errors"

var (
	// ErrEmptyDataset is returned when a training call carries no examples.
	ErrEmptyDataset = errors.New("training dataset is empty")

	// ErrMissingTarget is returned when an imported row has neither a
	// target_service nor a target column value.
	ErrMissingTarget = errors.New("target_service column is missing")

	// ErrBadFormat is returned for an unknown import format flag.
	ErrBadFormat = errors.New(`format must be "csv" or "jsonl"`)
)
