package detector

// Detector is a strategy that determines if a job is still running.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the job is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
