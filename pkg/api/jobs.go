package api

// Job is one job posting as served by GET /api/jobs.
type Job struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Salary      string `json:"salary"`
	Image       string `json:"image"`
}
