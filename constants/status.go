package constants

// JobStatus is the canonical status for rows in extraction_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued   JobStatus = "QUEUED"   // accepted, not started
	JobStatusRunning  JobStatus = "RUNNING"  // in progress
	JobStatusOCROK    JobStatus = "OCR_OK"   // text recovered from the file
	JobStatusAnalyzed JobStatus = "ANALYZED" // structured results extracted
	JobStatusWarned   JobStatus = "WARNED"   // ran to completion, nothing found
	JobStatusFailed   JobStatus = "FAILED"   // terminal failure
)
