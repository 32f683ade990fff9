package types

type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the envelope returned by the chat endpoint. Status is
// always set; Response/SQL/RowCount are populated on success, Error on
// failure. RetryAfter is set only for throttled requests (seconds).
type ChatResponse struct {
	Status     string `json:"status"`
	Response   string `json:"response,omitempty"`
	SQL        string `json:"sql,omitempty"`
	RowCount   int    `json:"row_count,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type ValidateRequest struct {
	Input string `json:"input"`
}

type ValidateResponse struct {
	IsSafe    bool     `json:"is_safe"`
	Threats   []string `json:"threats"`
	RiskScore int      `json:"risk_score"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
