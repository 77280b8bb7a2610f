package metrics

import (
	"encoding/json"
	"net/http"
)

type Exporter struct {
	collector *Collector
}

func NewExporter(collector *Collector) *Exporter {
	return &Exporter{collector: collector}
}

// Stats serves the full snapshot.
func (e *Exporter) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e.collector.Snapshot())
	}
}

// Health reports "leader" or "standby". Both are healthy; only the leader
// polls.
func (e *Exporter) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := e.collector.Snapshot()

		status := "leader"
		if !snapshot.IsLeader {
			status = "standby"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"is_leader": snapshot.IsLeader,
			"uptime_s":  int64(snapshot.Uptime.Seconds()),
		})
	}
}
