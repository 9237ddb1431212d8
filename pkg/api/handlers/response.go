package handlers

import "time"

// Response is the envelope of health responses.
//
//   - Status is "healthy" or "unhealthy"
//   - Timestamp is when the response was produced
//   - Data carries the payload (optional)
//   - Error explains an unhealthy status (optional)
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthyResponse(data any) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func unhealthyResponse(errMsg string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}
