package dto

import "github.com/soundprediction/kgroute/pkg/archive"

// RunsQuery is the query string of GET /api/v1/runs.
type RunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// RunsResponse lists archived runs, newest first.
type RunsResponse struct {
	Runs []*archive.Run `json:"runs"`
}
