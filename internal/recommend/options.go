package recommend

import "time"

// Options shapes one recommendation request.
type Options struct {
	MaxResults            int
	MinConfidence         float64
	IncludePartialMatches bool
	GroupFilter           string
	VendorFilter          string
	Parallel              bool
	// Timeout bounds each format's match. Zero uses the recommender default.
	Timeout time.Duration
}

// DefaultOptions returns the stock request options.
func DefaultOptions() Options {
	return Options{
		MaxResults:            10,
		IncludePartialMatches: true,
		Parallel:              true,
		Timeout:               5 * time.Second,
	}
}

// Config configures a Recommender.
type Config struct {
	// Workers bounds concurrent format matches. Zero means GOMAXPROCS.
	Workers     int
	TaskTimeout time.Duration
	// Batches with more lines than this fan out across lines.
	BatchParallelThreshold int
	// MemoSize is the number of single-line results kept. Zero disables it.
	MemoSize int
}

// DefaultConfig returns the stock recommender configuration.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:            5 * time.Second,
		BatchParallelThreshold: 10,
		MemoSize:               1024,
	}
}
