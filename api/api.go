// Package api exposes a small debug HTTP surface over the recovery
// engine, grounded on the teacher's node/api package: one handler
// function per route, registered onto a shared httprouter.Router, with
// small JSON-tagged response structs (node/api/consensus.go).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"go.thebigfile.com/availcore/modules"
	"go.thebigfile.com/availcore/recovery"
)

// Error is the JSON body written on any non-2xx response.
type Error struct {
	Message string `json:"message"`
}

// WriteJSON writes v as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a JSON error body with the given status.
func WriteError(w http.ResponseWriter, err Error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// AlertGET mirrors one modules.Alert for JSON transport.
type AlertGET struct {
	Msg      string `json:"msg"`
	Cause    string `json:"cause"`
	Module   string `json:"module"`
	Severity string `json:"severity"`
}

// AlertsGET buckets alerts by severity, the shape the teacher's own
// /daemon/alerts endpoint returns.
type AlertsGET struct {
	CriticalAlerts []AlertGET `json:"criticalalerts"`
	ErrorAlerts    []AlertGET `json:"erroralerts"`
	WarningAlerts  []AlertGET `json:"warningalerts"`
	InfoAlerts     []AlertGET `json:"infoalerts"`
}

// CacheGET reports the completed-recovery LRU's current occupancy.
type CacheGET struct {
	Entries int `json:"entries"`
}

func severityString(s modules.AlertSeverity) string {
	switch s {
	case modules.SeverityCritical:
		return "critical"
	case modules.SeverityError:
		return "error"
	case modules.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func alertGETs(alerts []modules.Alert) []AlertGET {
	out := make([]AlertGET, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertGET{
			Msg:      a.Msg,
			Cause:    a.Cause,
			Module:   a.Module,
			Severity: severityString(a.Severity),
		})
	}
	return out
}

// RegisterRoutes registers the debug API's routes onto router, mirroring
// RegisterRoutesConsensus's "one function wires every route for this
// subsystem" convention.
func RegisterRoutes(router *httprouter.Router, coordinator *recovery.Coordinator) {
	router.GET("/alerts", func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		alertsHandler(coordinator, w, req, ps)
	})
	router.GET("/cache", func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		cacheHandler(coordinator, w, req, ps)
	})
}

func alertsHandler(coordinator *recovery.Coordinator, w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	crit, errAlerts, warn, info := coordinator.Alerts()
	WriteJSON(w, AlertsGET{
		CriticalAlerts: alertGETs(crit),
		ErrorAlerts:    alertGETs(errAlerts),
		WarningAlerts:  alertGETs(warn),
		InfoAlerts:     alertGETs(info),
	})
}

func cacheHandler(coordinator *recovery.Coordinator, w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	WriteJSON(w, CacheGET{Entries: coordinator.CacheLen()})
}
