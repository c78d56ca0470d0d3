package observability

import (
	"sync"
	"time"
)

// Stage mirrors the orchestrator phase for the live dashboard.
type Stage string

const (
	StageIdle       Stage = "IDLE"
	StagePlanning   Stage = "PLANNING"
	StageExecuting  Stage = "EXECUTING"
	StageReplanning Stage = "REPLANNING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentStage  Stage
	ActiveStep    string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentStage:  StageIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(stage Stage, step string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentStage = stage
	globalStatus.ActiveStep = step
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Stage, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentStage, globalStatus.ActiveStep, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
