package coordinator

// Severity of a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Notifier is the external toast/banner collaborator. Rendering of the
// message is out of scope here.
type Notifier interface {
	Notify(message string, severity Severity)
}

// FinancialSummaryHook is invoked after any mutation that changes monetary
// totals, so an external summary view can refresh itself.
type FinancialSummaryHook func()
