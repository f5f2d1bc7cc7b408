package model

import "time"

// MatchResult is the wire form of one policy's evaluation outcome.
type MatchResult struct {
	LenderName string   `json:"lender_name"`
	PolicyName string   `json:"policy_name"`
	Eligible   bool     `json:"eligible"`
	Reasons    []string `json:"reasons"`
	Score      float64  `json:"score"`
}

// MatchRun is a persisted snapshot of one evaluation run. PolicyHash
// identifies the policy set the results were computed against.
type MatchRun struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"application_id"`
	Results       []MatchResult `json:"results"`
	PolicyHash    string        `json:"policy_hash"`
	CreatedAt     time.Time     `json:"created_at"`
}
