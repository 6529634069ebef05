package client

import "time"

// WorkerState reports whether a held worker goroutine is still alive.
type WorkerState struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
}

// StatusResponse is returned by GET /status and by every lifecycle call.
// Code is 1 when running, 0 when stopped and -1 when inconsistent.
type StatusResponse struct {
	Status  string        `json:"status"`
	Code    int           `json:"code"`
	Workers []WorkerState `json:"workers,omitempty"`
}

// Running reports whether the module is fully running.
func (s StatusResponse) Running() bool { return s.Code == 1 }

// BusStats mirrors the change-event bus counters.
type BusStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Running bool          `json:"running"`
	Uptime  time.Duration `json:"uptime_ns"`
	Bus     BusStats      `json:"bus"`
}

// Order is a snapshot of one orders slot.
type Order struct {
	ID      uint64  `json:"id"`
	Version uint32  `json:"version"`
	Qty     int32   `json:"qty"`
	Price   float32 `json:"price"`
}

// User is a snapshot of one users slot.
type User struct {
	ID      uint64 `json:"id"`
	Version uint32 `json:"version"`
	Name    string `json:"name"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
