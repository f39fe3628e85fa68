package curation

import "github.com/rotisserie/eris"

var (
	// ErrEmptyDataset is returned when a stage leaves no rows to process.
	ErrEmptyDataset = eris.New("curation: empty dataset")

	// ErrNotScored is returned when confidence filtering runs before curve fitting.
	ErrNotScored = eris.New("curation: confidence level missing, run curve fitting first")

	// ErrNoAggregates is returned when the outlier filter has no aggregate table to work from.
	ErrNoAggregates = eris.New("curation: no aggregate table for outlier filtering")
)
