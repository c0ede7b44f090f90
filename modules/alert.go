package modules

import "sync"

// GenericAlerter is a thread-safe registry of Alerts a component can
// embed and report through its own Alerts() method, the same role the
// teacher's modules.GenericAlerter plays for gateway.Alerts() and
// friends (modules/gateway/alert.go just forwards to one).
type GenericAlerter struct {
	module string
	alerts map[string]Alert
	mu     sync.Mutex
}

// NewAlerter returns a GenericAlerter scoped to module, used in alert
// Cause/Module fields for operator-facing attribution.
func NewAlerter(module string) *GenericAlerter {
	return &GenericAlerter{
		module: module,
		alerts: make(map[string]Alert),
	}
}

// RegisterAlert adds or replaces the alert keyed by id.
func (a *GenericAlerter) RegisterAlert(id string, msg, cause string, severity AlertSeverity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts[id] = Alert{Msg: msg, Cause: cause, Module: a.module, Severity: severity}
}

// UnregisterAlert removes the alert keyed by id, if present.
func (a *GenericAlerter) UnregisterAlert(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.alerts, id)
}

// Alerts implements the Alerter interface, bucketing by severity the
// way modules.Alerter callers (e.g. the debug API) expect.
func (a *GenericAlerter) Alerts() (crit, err, warn, info []Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, al := range a.alerts {
		switch al.Severity {
		case SeverityCritical:
			crit = append(crit, al)
		case SeverityError:
			err = append(err, al)
		case SeverityWarning:
			warn = append(warn, al)
		default:
			info = append(info, al)
		}
	}
	return
}
