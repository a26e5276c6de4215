package domain

import "time"

// Session groups the QA pairs of one multi-turn conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	QACount   int       `json:"qa_count"`
}

// QAPair is one answered question with the chunks it was grounded on.
type QAPair struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Sources   []ScoredResult `json:"sources"`
	CreatedAt time.Time      `json:"created_at"`
}

// Answer is the user-facing QA flow output.
type Answer struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Sources   []ScoredResult `json:"sources"`
}
