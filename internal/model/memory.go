package model

import "time"

// MemoryDocument 是索引到 Elasticsearch 的一轮已回答问答。
type MemoryDocument struct {
	TurnID      string    `json:"turn_id"`
	UserID      string    `json:"user_id"`
	Chapter     string    `json:"chapter"`
	SessionID   string    `json:"session_id"`
	RoundNumber int       `json:"round_number"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemorySearchResult 是回忆检索接口返回的单条命中。
type MemorySearchResult struct {
	Chapter     string  `json:"chapter"`
	RoundNumber int     `json:"roundNumber"`
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	Score       float64 `json:"score"`
}
