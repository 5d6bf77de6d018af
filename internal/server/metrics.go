package server

import (
	"sync/atomic"
	"time"
)

// Metrics holds in-process counters exposed on /api/v1/metrics.
type Metrics struct {
	startedAt time.Time

	requestsTotal      atomic.Int64
	chatTurnsTotal     atomic.Int64
	correctionsTotal   atomic.Int64
	tokensUsedTotal    atomic.Int64
	llmErrorsTotal     atomic.Int64
	sessionsCreated    atomic.Int64
	sessionsExpired    atomic.Int64
}

// NewMetrics creates a Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now().UTC()}
}

// MetricsSnapshot is the JSON shape returned by the metrics endpoint.
type MetricsSnapshot struct {
	UptimeSeconds    int64 `json:"uptime_seconds"`
	RequestsTotal    int64 `json:"requests_total"`
	ChatTurnsTotal   int64 `json:"chat_turns_total"`
	CorrectionsTotal int64 `json:"corrections_total"`
	TokensUsedTotal  int64 `json:"tokens_used_total"`
	LLMErrorsTotal   int64 `json:"llm_errors_total"`
	SessionsCreated  int64 `json:"sessions_created"`
	SessionsExpired  int64 `json:"sessions_expired"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:    int64(time.Since(m.startedAt).Seconds()),
		RequestsTotal:    m.requestsTotal.Load(),
		ChatTurnsTotal:   m.chatTurnsTotal.Load(),
		CorrectionsTotal: m.correctionsTotal.Load(),
		TokensUsedTotal:  m.tokensUsedTotal.Load(),
		LLMErrorsTotal:   m.llmErrorsTotal.Load(),
		SessionsCreated:  m.sessionsCreated.Load(),
		SessionsExpired:  m.sessionsExpired.Load(),
	}
}

func (m *Metrics) recordRequest()       { m.requestsTotal.Add(1) }
func (m *Metrics) recordLLMError()      { m.llmErrorsTotal.Add(1) }
func (m *Metrics) recordSessionStart()  { m.sessionsCreated.Add(1) }
func (m *Metrics) recordSessionExpiry() { m.sessionsExpired.Add(1) }

// recordChatTurn accounts one completed tutoring turn.
func (m *Metrics) recordChatTurn(corrections, tokens int) {
	m.chatTurnsTotal.Add(1)
	m.correctionsTotal.Add(int64(corrections))
	m.tokensUsedTotal.Add(int64(tokens))
}
