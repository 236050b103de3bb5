package service

import "fmt"

// ResourceExhaustedError — кончился пул портов или client id.
// Фатально только для этой аллокации, не для оркестратора.
type ResourceExhaustedError struct {
	Pool string // "port" | "client_id"
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("orchestrator: %s pool exhausted", e.Pool)
}
