package model

// TopicSpec 描述章节中一个必须覆盖的主题大类。
// Keywords 是该主题的快速匹配词表；主题名本身始终参与匹配。
type TopicSpec struct {
	Name     string   `mapstructure:"name" json:"name"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// ChapterConfig 是一个章节的静态配置：应覆盖的主题大类与备用问题库。
// 启动时从 chapters.yaml 加载，运行期只读。
type ChapterConfig struct {
	Name              string      `mapstructure:"name" json:"name"`
	Description       string      `mapstructure:"description" json:"description"`
	RequiredTopics    []TopicSpec `mapstructure:"required_topics" json:"requiredTopics"`
	FallbackQuestions []string    `mapstructure:"fallback_questions" json:"fallbackQuestions"`
}

// TopicNames 按配置顺序返回全部主题名。
func (c ChapterConfig) TopicNames() []string {
	names := make([]string, 0, len(c.RequiredTopics))
	for _, t := range c.RequiredTopics {
		names = append(names, t.Name)
	}
	return names
}

// OpeningQuestion 返回该章节的首轮开场问题（问题库第一条）。
func (c ChapterConfig) OpeningQuestion() string {
	if len(c.FallbackQuestions) == 0 {
		return "您好！很高兴认识您，能先告诉我您的名字吗？"
	}
	return c.FallbackQuestions[0]
}
