package model

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkerIdentity names a collector process: host, pid and a per-start instance suffix.
type WorkerIdentity struct {
	Host     string
	PID      int
	Instance string
}

// NewWorkerIdentity builds the identity of the current process.
func NewWorkerIdentity() WorkerIdentity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return WorkerIdentity{
		Host:     host,
		PID:      os.Getpid(),
		Instance: strings.SplitN(uuid.NewString(), "-", 2)[0],
	}
}

func (w WorkerIdentity) String() string {
	if w.Instance == "" {
		return fmt.Sprintf("%s:%d", w.Host, w.PID)
	}
	return fmt.Sprintf("%s:%d:%s", w.Host, w.PID, w.Instance)
}

// WorkerStats accumulates per worker identity and stage.
type WorkerStats struct {
	WorkerID               string     `json:"worker_id"                db:"worker_id"`
	Stage                  Stage      `json:"stage"                    db:"stage"`
	Claims                 int64      `json:"claims"                   db:"claims"`
	Processed              int64      `json:"processed"                db:"processed"`
	Errors                 int64      `json:"errors"                   db:"errors"`
	TotalProcessingSeconds float64    `json:"total_processing_seconds" db:"total_processing_seconds"`
	HeartbeatCount         int64      `json:"heartbeat_count"          db:"heartbeat_count"`
	LastHeartbeat          *time.Time `json:"last_heartbeat,omitempty" db:"last_heartbeat"`
	FirstSeen              time.Time  `json:"first_seen"               db:"first_seen"`
}

// AverageProcessingSeconds returns the mean time per finished unit.
func (s WorkerStats) AverageProcessingSeconds() float64 {
	finished := s.Processed + s.Errors
	if finished == 0 {
		return 0
	}
	return s.TotalProcessingSeconds / float64(finished)
}

// WorkerOutcome is recorded after a unit finishes.
type WorkerOutcome struct {
	Failed  bool
	Elapsed time.Duration
}
