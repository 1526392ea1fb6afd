package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is one parsed audit line.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	ActivityType string    `json:"activityType"`
	Status       string    `json:"status"`
	Details      string    `json:"details"`
}

// Query selects records. Zero fields match everything; From and To are inclusive.
type Query struct {
	From         time.Time
	To           time.Time
	ActivityType string
	Status       string
}

// Matches reports whether rec satisfies every set field of q.
func (q Query) Matches(rec Record) bool {
	if !q.From.IsZero() && rec.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && rec.Timestamp.After(q.To) {
		return false
	}
	if q.ActivityType != "" && rec.ActivityType != q.ActivityType {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	return true
}

// Search returns the records of the log at path matching q, in file order.
// Lines that are not valid records are skipped.
func Search(path string, q Query) ([]Record, error) {
	// #nosec G304 - path comes from configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading audit log: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("error reading audit log: %w", err)
	}
	return out, nil
}

func ByDateRange(path string, from, to time.Time) ([]Record, error) {
	return Search(path, Query{From: from, To: to})
}

func ByActivityType(path, activityType string) ([]Record, error) {
	return Search(path, Query{ActivityType: activityType})
}

func ByStatus(path, status string) ([]Record, error) {
	return Search(path, Query{Status: status})
}
