package httpx

import (
	"time"

	"github.com/finward/opsflow/internal/common"
)

// AuditEntry is one terminal request outcome, success or failure.
type AuditEntry struct {
	Time        time.Time
	Method      string
	Destination string
	Status      int
	OK          bool
	Detail      string
}

// Auditor receives every terminal outcome the client produces.
type Auditor interface {
	Record(entry AuditEntry)
}

// LogAuditor writes audit entries through the structured logger,
// masking credential material before it leaves the process.
type LogAuditor struct {
	logger *common.Logger
	masker *common.Masker
}

// NewLogAuditor creates an auditor backed by the given logger. A nil
// logger falls back to the package default.
func NewLogAuditor(logger *common.Logger) *LogAuditor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &LogAuditor{
		logger: logger.WithComponent("audit"),
		masker: common.GetGlobalMasker(),
	}
}

// Record writes one audit line per outcome
func (a *LogAuditor) Record(entry AuditEntry) {
	detail := a.masker.MaskString(entry.Detail)
	if entry.OK {
		a.logger.Info("data_ingest",
			"destination", entry.Destination,
			"method", entry.Method,
			"status", entry.Status,
			"at", entry.Time.UTC().Format(time.RFC3339))
		return
	}
	a.logger.Error("data_ingest_failed",
		"destination", entry.Destination,
		"method", entry.Method,
		"status", entry.Status,
		"detail", detail,
		"at", entry.Time.UTC().Format(time.RFC3339))
}
