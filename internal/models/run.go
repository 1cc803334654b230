package models

import "time"

// RunRequest 是 /api/v1/hackrx/run 的请求体。
type RunRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

// RunResponse 是一次问答运行的响应体，answers 与 questions 一一对应且顺序一致。
type RunResponse struct {
	Answers        []string `json:"answers"`
	ProcessingTime float64  `json:"processing_time"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
}

// RunStatus 定义了运行事件的结果枚举。
type RunStatus string

const (
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCached    RunStatus = "CACHED"
)

// RunEvent 定义了每次运行结束后发送到 Kafka 的事件结构。
type RunEvent struct {
	RunID          string    `json:"run_id"`
	Document       string    `json:"document"`
	QuestionCount  int       `json:"question_count"`
	Status         RunStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	Chunks         int       `json:"chunks,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	CacheHit       bool      `json:"cache_hit"`
	Timestamp      time.Time `json:"timestamp"`
}
