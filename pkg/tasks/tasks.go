// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// SummaryExtractionTask represents a deep-extraction job for one answered turn.
// 由访谈主流程发布，后台消费者调用 LLM 提取主题/人物/事件并合并进章节摘要。
// 允许滞后一轮：快速路径的关键词匹配不依赖该结果。
type SummaryExtractionTask struct {
	UserID  string `json:"user_id"`
	Chapter string `json:"chapter"`
	Round   int    `json:"round"`
	Answer  string `json:"answer"`
}

// Key 返回用于失败计数与日志的任务标识。
func (t SummaryExtractionTask) Key() string {
	return t.UserID + ":" + t.Chapter
}
