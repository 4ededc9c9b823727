// Package domain defines the records that flow between the pipeline stages
// and the remote sink.
package domain

// Sink table names.
const (
	TableStockPrices      = "stock_prices"
	TablePipelineLogs     = "pipeline_logs"
	TableModelMetadata    = "model_metadata"
	TableModelPredictions = "model_predictions"
)

// SourceHistorical tags price rows produced by the historical normalizer.
const SourceHistorical = "historical"

// Record is a flat JSON-serializable row destined for a sink table.
type Record = map[string]any

// StockPrice is one normalized daily OHLCV row. Date and IngestedAt are
// RFC 3339 strings in UTC.
type StockPrice struct {
	Symbol        string  `json:"symbol"`
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
	Source        string  `json:"source"`
	IngestedAt    string  `json:"ingested_at"`
}

// Record converts the price into a sink row.
func (p StockPrice) Record() Record {
	return Record{
		"symbol":         p.Symbol,
		"date":           p.Date,
		"open":           p.Open,
		"high":           p.High,
		"low":            p.Low,
		"close":          p.Close,
		"adjusted_close": p.AdjustedClose,
		"volume":         p.Volume,
		"source":         p.Source,
		"ingested_at":    p.IngestedAt,
	}
}

// PipelineLog is a single log entry captured during a pipeline run.
type PipelineLog struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id"`
	Component string         `json:"component"`
	Context   map[string]any `json:"context,omitempty"`
}

// Record converts the log entry into a sink row.
func (l PipelineLog) Record() Record {
	r := Record{
		"timestamp": l.Timestamp,
		"level":     l.Level,
		"message":   l.Message,
		"run_id":    l.RunID,
		"component": l.Component,
	}
	if len(l.Context) > 0 {
		r["context"] = l.Context
	}
	return r
}

// ModelMetadata describes one trained model artifact.
type ModelMetadata struct {
	Symbol            string             `json:"symbol"`
	ModelName         string             `json:"model_name"`
	Task              string             `json:"task"`
	Version           string             `json:"version"`
	TrainedAt         string             `json:"trained_at"`
	DatasetVersion    string             `json:"dataset_version"`
	TargetColumn      string             `json:"target_column"`
	FeatureColumns    []string           `json:"feature_columns"`
	Hyperparameters   map[string]any     `json:"hyperparameters"`
	TrainRows         int                `json:"train_rows"`
	TestRows          int                `json:"test_rows"`
	ValidationMetrics map[string]float64 `json:"validation_metrics"`
	CVMetrics         map[string]float64 `json:"cv_metrics,omitempty"`
	ModelPath         string             `json:"model_path"`
	MetadataPath      string             `json:"metadata_path"`
}

// Record converts the metadata into a sink row.
func (m ModelMetadata) Record() Record {
	return Record{
		"symbol":             m.Symbol,
		"model_name":         m.ModelName,
		"task":               m.Task,
		"version":            m.Version,
		"trained_at":         m.TrainedAt,
		"dataset_version":    m.DatasetVersion,
		"target_column":      m.TargetColumn,
		"feature_columns":    m.FeatureColumns,
		"hyperparameters":    m.Hyperparameters,
		"train_rows":         m.TrainRows,
		"test_rows":          m.TestRows,
		"validation_metrics": m.ValidationMetrics,
		"cv_metrics":         m.CVMetrics,
		"model_path":         m.ModelPath,
		"metadata_path":      m.MetadataPath,
	}
}

// Prediction is one inference result row.
type Prediction struct {
	Timestamp       string   `json:"timestamp"`
	Symbol          string   `json:"symbol"`
	ModelName       string   `json:"model_name"`
	DatasetVersion  string   `json:"dataset_version"`
	Prediction      float64  `json:"prediction"`
	PredictedAt     string   `json:"predicted_at"`
	PredictionProba *float64 `json:"prediction_proba,omitempty"`
	TargetColumn    string   `json:"target_column,omitempty"`
}

// Record converts the prediction into a sink row.
func (p Prediction) Record() Record {
	r := Record{
		"timestamp":       p.Timestamp,
		"symbol":          p.Symbol,
		"model_name":      p.ModelName,
		"dataset_version": p.DatasetVersion,
		"prediction":      p.Prediction,
		"predicted_at":    p.PredictedAt,
	}
	if p.PredictionProba != nil {
		r["prediction_proba"] = *p.PredictionProba
	}
	if p.TargetColumn != "" {
		r["target_column"] = p.TargetColumn
	}
	return r
}
