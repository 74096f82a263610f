package status

import "time"

// ConnectionReport describes the bridge link as shown to clients
type ConnectionReport struct {
	State     string    `json:"state"`
	Connected bool      `json:"connected"`
	URL       string    `json:"url"`
	Since     time.Time `json:"since"`
}
