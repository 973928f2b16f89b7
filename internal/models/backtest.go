package models

import "time"

type BacktestMetrics struct {
	MAE                 float64 `json:"mae"`
	RMSE                float64 `json:"rmse"`
	R2                  float64 `json:"r2"`
	MAPE                float64 `json:"mape"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
	Within10Pct         float64 `json:"within_10_pct"`
	Within20Pct         float64 `json:"within_20_pct"`
	IntervalCoverage    float64 `json:"interval_coverage"`
	SampleCount         int     `json:"sample_count"`
}

type BacktestWindowResult struct {
	TrainStart   time.Time       `json:"train_start"`
	TrainEnd     time.Time       `json:"train_end"`
	TestStart    time.Time       `json:"test_start"`
	TestEnd      time.Time       `json:"test_end"`
	TrainSamples int             `json:"train_samples"`
	Metrics      BacktestMetrics `json:"metrics"`
	Skipped      bool            `json:"skipped,omitempty"`
	SkipReason   string          `json:"skip_reason,omitempty"`
}

type BacktestReport struct {
	Statistic string                 `json:"statistic"`
	Start     time.Time              `json:"start"`
	End       time.Time              `json:"end"`
	Windows   []BacktestWindowResult `json:"windows"`
	Aggregate BacktestMetrics        `json:"aggregate"`
}
