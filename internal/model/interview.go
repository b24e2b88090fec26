// Package model 包含了应用的数据模型定义。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList 是以 JSON 文本形式存储在数据库中的字符串列表。
type StringList []string

// Value 实现 driver.Valuer 接口，将列表序列化为 JSON 字符串写入数据库。
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口，从数据库读出的 JSON 字符串反序列化为列表。
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("无法将 %T 扫描到 StringList", value)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// ConversationTurn 代表访谈中的一轮问答。
// 问题生成时创建，回答提交时更新一次，之后不再变更。
type ConversationTurn struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(64);uniqueIndex:idx_session_round;not null" json:"userId"`
	Chapter     string    `gorm:"type:varchar(32);uniqueIndex:idx_session_round;not null" json:"chapter"`
	SessionID   string    `gorm:"type:varchar(64);uniqueIndex:idx_session_round;not null" json:"sessionId"`
	RoundNumber int       `gorm:"uniqueIndex:idx_session_round;not null" json:"roundNumber"`
	Question    string    `gorm:"type:text;not null" json:"question"`
	Answer      string    `gorm:"type:text" json:"answer"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ConversationTurn) TableName() string {
	return "conversation_history"
}

// Answered 报告这一轮是否已有用户回答。
func (t ConversationTurn) Answered() bool {
	return t.Question != "" && t.Answer != ""
}

// ChapterSummary 代表某用户在某章节已收集信息的累积摘要。
// 每个字段是有上限的集合，按插入顺序保留，超限截断。
type ChapterSummary struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"type:varchar(64);uniqueIndex:idx_user_chapter;not null" json:"userId"`
	Chapter       string     `gorm:"type:varchar(32);uniqueIndex:idx_user_chapter;not null" json:"chapter"`
	KeyThemes     StringList `gorm:"type:text" json:"keyThemes"`
	KeyPeople     StringList `gorm:"type:text" json:"keyPeople"`
	KeyEvents     StringList `gorm:"type:text" json:"keyEvents"`
	EmotionalTone string     `gorm:"type:varchar(32)" json:"emotionalTone"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChapterSummary) TableName() string {
	return "conversation_summary"
}

// Biography 代表一次合成产出的传记文本。创建后不可变，重新生成会新增记录。
type Biography struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"type:varchar(64);index;not null" json:"userId"`
	Chapter      string    `gorm:"type:varchar(32)" json:"chapter"` // 为空表示全量传记
	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	WritingStyle string    `gorm:"type:varchar(32);not null" json:"writingStyle"`
	Content      string    `gorm:"type:longtext;not null" json:"content"`
	Status       string    `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Biography) TableName() string {
	return "biographies"
}

// ExtractedFacts 是深度提取调用返回的结构化载荷。
type ExtractedFacts struct {
	Themes        []string `json:"themes"`
	People        []string `json:"people"`
	Events        []string `json:"events"`
	EmotionalTone string   `json:"emotional_tone"`
}
