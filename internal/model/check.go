package model

// CheckStatus represents the status of a cached file check.
type CheckStatus string

const (
	// CheckStatusOK indicates the cached file is valid.
	CheckStatusOK CheckStatus = "ok"
	// CheckStatusDiscarded indicates the cached file was corrupt and has been discarded.
	CheckStatusDiscarded CheckStatus = "discarded"
	// CheckStatusError indicates the cached file is corrupt.
	CheckStatusError CheckStatus = "error"
)

// CheckResult represents the result of checking a single cached file.
type CheckResult struct {
	Record  CacheRecord
	Result  string      // Verification result (e.g., "file-hash-error").
	Status  CheckStatus // Status of the check.
	Message string      // Human-readable description of the result.
}

// HasErrors returns true if any check result has an error status.
func HasErrors(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == CheckStatusError {
			return true
		}
	}
	return false
}

// CountByStatus counts check results by status.
func CountByStatus(results []CheckResult) (ok, discarded, errors int) {
	for _, r := range results {
		switch r.Status {
		case CheckStatusOK:
			ok++
		case CheckStatusDiscarded:
			discarded++
		case CheckStatusError:
			errors++
		}
	}
	return
}
