package model

// ThreatDetail is a single detection handed over by the scanning engine.
// The classification fields are opaque to the quarantine engine.
type ThreatDetail struct {
	FilePath   string `json:"file_path" yaml:"file_path"`
	ThreatName string `json:"threat_name" yaml:"threat_name"`
	Category   string `json:"category" yaml:"category"`
	Severity   string `json:"severity" yaml:"severity"`
}

type ScanStatus string

const (
	ScanStatusClean     ScanStatus = "CLEAN"
	ScanStatusInfected  ScanStatus = "INFECTED"
	ScanStatusError     ScanStatus = "ERROR"
	ScanStatusCancelled ScanStatus = "CANCELLED"
)

// ScanResult is the aggregate record produced by one scan run.
type ScanResult struct {
	Status        ScanStatus     `json:"status" yaml:"status"`
	Path          string         `json:"path" yaml:"path"`
	ScannedFiles  int            `json:"scanned_files" yaml:"scanned_files"`
	ScannedDirs   int            `json:"scanned_dirs" yaml:"scanned_dirs"`
	InfectedCount int            `json:"infected_count" yaml:"infected_count"`
	ErrorMessage  string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ThreatDetails []ThreatDetail `json:"threat_details" yaml:"threat_details"`
}

func (r ScanResult) HasThreats() bool {
	return r.Status == ScanStatusInfected && len(r.ThreatDetails) > 0
}
