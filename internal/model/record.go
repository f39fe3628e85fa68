// Package model defines the record, key, and run types shared across the curation pipeline.
package model

import "database/sql"

// RawRecord is one flat consumption row as delivered by a record source.
// Every field is kept as read; typing happens during normalization.
type RawRecord struct {
	EnvironmentName       string `json:"environmentName"`
	BatchName             string `json:"batchName"`
	ClientName            string `json:"clientName"`
	BatchAge              string `json:"batchAge"`
	FeedPerBird           string `json:"feed_measuredPerBird"`
	PreBatchFeedDelivery  string `json:"preBatch_feedDelivery_measured"`
	FeedDelivery          string `json:"feedDelivery_measured"`
	FeedMeasured          string `json:"feed_measured"`
	FeedManual            string `json:"feed_manual_measured"`
	SiloEmptyTime         string `json:"siloEmptyTime"`
	SiloNoConsumptionTime string `json:"siloNoConsumptionTime"`
}

// Aux holds the delivery, manual override, and silo timing fields that
// travel through the pipeline untouched.
type Aux struct {
	PreBatchFeedDelivery  float64 `json:"pre_batch_feed_delivery"`
	FeedDelivery          float64 `json:"feed_delivery"`
	FeedMeasured          float64 `json:"feed_measured"`
	FeedManual            float64 `json:"feed_manual"`
	SiloEmptyTime         int64   `json:"silo_empty_time"`
	SiloNoConsumptionTime int64   `json:"silo_no_consumption_time"`
}

// Record is one normalized observation of a batch at a given age.
type Record struct {
	Lot        LotKey `json:"lot_key"`
	ClientName string `json:"client_name,omitempty"`
	BatchAge   int    `json:"batch_age"`

	// FeedPerBird is invalid when the source value was missing or non-numeric.
	FeedPerBird sql.NullFloat64 `json:"feed_per_bird"`

	Aux Aux `json:"aux"`

	// ConfidenceLevel is the R² of the lot's fitted curve. It is invalid when
	// the fit was undefined; Scored tells whether a fit was attempted at all.
	ConfidenceLevel sql.NullFloat64 `json:"confidence_level"`
	Scored          bool            `json:"scored"`
}

// EnvironmentID returns the numeric environment identifier.
func (r Record) EnvironmentID() int { return r.Lot.EnvironmentID }

// BatchID returns the numeric batch identifier.
func (r Record) BatchID() int { return r.Lot.BatchID }

// FittedCurve is the per-lot quadratic fit of feed per bird over batch age.
type FittedCurve struct {
	Lot  LotKey `json:"lot_key"`
	Rows int    `json:"rows"`

	// Coefficients are c0, c1, c2 of c0 + c1·age + c2·age².
	Coefficients    [3]float64      `json:"coefficients"`
	ConfidenceLevel sql.NullFloat64 `json:"confidence_level"`

	// Reason is set when ConfidenceLevel is undefined.
	Reason string `json:"reason,omitempty"`
}

// AggregateRow is the total feed per bird of one retained lot across all ages.
type AggregateRow struct {
	Lot                     LotKey  `json:"lot_key"`
	TotalConsumptionPerBird float64 `json:"total_consumption_per_bird"`
	Rows                    int     `json:"rows"`
}
