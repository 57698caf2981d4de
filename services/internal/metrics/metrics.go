package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sensebox_"

	ResultSuccess = "success"
	ResultError   = "error"

	WindowOK        = "ok"
	WindowNoData    = "no_data"
	WindowTransport = "transport"
	WindowParse     = "parse"

	IngestInserted  = "inserted"
	IngestDuplicate = "duplicate"
	IngestInvalid   = "invalid"

	ForecastInsufficient = "insufficient_history"
)

var (
	registerOnce sync.Once

	acquisitionWindows    *prometheus.CounterVec
	acquisitionPartitions prometheus.Counter
	acquisitionReadings   prometheus.Counter
	apiRetries            *prometheus.CounterVec

	ingestRows     *prometheus.CounterVec
	ingestPolls    *prometheus.CounterVec
	bulkRowsLoaded prometheus.Counter

	forecastTotal   *prometheus.CounterVec
	forecastLatency *prometheus.HistogramVec
)

// Init registers the collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		acquisitionWindows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "acquisition_windows_total",
				Help: "Historical fetch windows by result",
			},
			[]string{"result"},
		)
		acquisitionPartitions = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "acquisition_partitions_total",
				Help: "Sensor partitions written to the dataset",
			},
		)
		acquisitionReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "acquisition_readings_total",
				Help: "Readings written to the dataset",
			},
		)
		apiRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "api_retries_total",
				Help: "Retried SenseBox API calls by endpoint",
			},
			[]string{"endpoint"},
		)

		ingestRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_total",
				Help: "Live readings by ingest outcome",
			},
			[]string{"outcome"},
		)
		ingestPolls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_polls_total",
				Help: "Live polls by result",
			},
			[]string{"result"},
		)
		bulkRowsLoaded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "bulk_rows_loaded_total",
				Help: "Rows appended to storage by the bulk loader",
			},
		)

		forecastTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "forecast_total",
				Help: "Forecast requests by result",
			},
			[]string{"result"},
		)
		forecastLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "forecast_latency_seconds",
				Help:    "Forecast latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			acquisitionWindows,
			acquisitionPartitions,
			acquisitionReadings,
			apiRetries,
			ingestRows,
			ingestPolls,
			bulkRowsLoaded,
			forecastTotal,
			forecastLatency,
		)
	})
}

// IncWindow counts one historical fetch window by result.
func IncWindow(result string) {
	if result == "" {
		result = WindowOK
	}
	if acquisitionWindows != nil {
		acquisitionWindows.WithLabelValues(result).Inc()
	}
}

// AddPartition records a written partition and its row count.
func AddPartition(rows int) {
	if acquisitionPartitions != nil {
		acquisitionPartitions.Inc()
	}
	if acquisitionReadings != nil {
		acquisitionReadings.Add(float64(rows))
	}
}

// IncRetry counts a retried API call.
func IncRetry(endpoint string) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if apiRetries != nil {
		apiRetries.WithLabelValues(endpoint).Inc()
	}
}

// AddIngest counts live readings for an outcome.
func AddIngest(outcome string, n int) {
	if n <= 0 {
		return
	}
	if ingestRows != nil {
		ingestRows.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncPoll counts one live poll.
func IncPoll(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if ingestPolls != nil {
		ingestPolls.WithLabelValues(result).Inc()
	}
}

// AddBulkRows counts rows appended by the bulk loader.
func AddBulkRows(n int) {
	if bulkRowsLoaded != nil && n > 0 {
		bulkRowsLoaded.Add(float64(n))
	}
}

// ObserveForecast records forecast duration and result.
func ObserveForecast(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if forecastTotal != nil {
		forecastTotal.WithLabelValues(result).Inc()
	}
	if forecastLatency != nil {
		forecastLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// WriteTextfile writes the default registry in the text exposition format
// so one-shot jobs can hand their counters to a node_exporter textfile
// collector. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
