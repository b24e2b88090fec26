// Package service 包含了应用的业务逻辑层。
package service

import (
	"math"
	"strings"

	"jizhuanti-go/internal/model"
)

// TopicClassifier 从一组回答文本中识别已讨论的主题。
// 当前实现是确定性的关键词匹配；更深的语义分类由后台提取管道
// 写入摘要后经同一条评估路径生效，两者可以互换。
type TopicClassifier interface {
	DiscussedTopics(answers []string, topics []model.TopicSpec) []string
}

// keywordClassifier 按主题词表做同步的字面匹配，保证提问路径永不被阻塞。
type keywordClassifier struct{}

// NewKeywordClassifier 创建关键词匹配的 TopicClassifier。
func NewKeywordClassifier() TopicClassifier {
	return keywordClassifier{}
}

// DiscussedTopics 返回在回答文本中出现过的主题（按 topics 的顺序）。
// 主题名本身始终参与匹配，词表是补充信号。
func (keywordClassifier) DiscussedTopics(answers []string, topics []model.TopicSpec) []string {
	if len(answers) == 0 {
		return nil
	}
	text := strings.ToLower(strings.Join(answers, "\n"))

	var discussed []string
	for _, topic := range topics {
		if containsAny(text, append([]string{topic.Name}, topic.Keywords...)) {
			discussed = append(discussed, topic.Name)
		}
	}
	return discussed
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// CoverageResult 是一次覆盖度评估的结果。
type CoverageResult struct {
	MissingTopics []string
	Coverage      int
}

// CoverageService 估计章节必选主题的覆盖情况。
type CoverageService interface {
	Evaluate(chapter model.ChapterConfig, turns []model.ConversationTurn, summary *model.ChapterSummary) CoverageResult
}

type coverageService struct {
	classifier   TopicClassifier
	recentWindow int
}

// NewCoverageService 创建一个新的 CoverageService 实例。
// recentWindow 限定参与关键词匹配的最近回答条数。
func NewCoverageService(classifier TopicClassifier, recentWindow int) CoverageService {
	if recentWindow <= 0 {
		recentWindow = 5
	}
	return &coverageService{classifier: classifier, recentWindow: recentWindow}
}

// Evaluate 合并两路独立证据：已持久化摘要中的主题，与最近回答的关键词命中。
// 快路径在回答落库时就把关键词命中写进摘要，所以滑出近期窗口的回答
// 不会丢失证据；关键词路径保证当轮立即有信号。
func (s *coverageService) Evaluate(chapter model.ChapterConfig, turns []model.ConversationTurn, summary *model.ChapterSummary) CoverageResult {
	total := len(chapter.RequiredTopics)
	if total == 0 {
		return CoverageResult{Coverage: 0}
	}

	discussed := make(map[string]struct{})
	if summary != nil {
		names := make(map[string]struct{}, total)
		for _, t := range chapter.RequiredTopics {
			names[t.Name] = struct{}{}
		}
		for _, theme := range summary.KeyThemes {
			if _, ok := names[theme]; ok {
				discussed[theme] = struct{}{}
			}
		}
	}

	answers := recentAnswers(turns, s.recentWindow)
	for _, name := range s.classifier.DiscussedTopics(answers, chapter.RequiredTopics) {
		discussed[name] = struct{}{}
	}

	var missing []string
	for _, t := range chapter.RequiredTopics {
		if _, ok := discussed[t.Name]; !ok {
			missing = append(missing, t.Name)
		}
	}

	covered := total - len(missing)
	coverage := int(math.Round(float64(covered) / float64(total) * 100))
	return CoverageResult{MissingTopics: missing, Coverage: coverage}
}

// recentAnswers 返回最近 n 条非空回答（按时间先后）。
func recentAnswers(turns []model.ConversationTurn, n int) []string {
	var answers []string
	for _, t := range turns {
		if t.Answer != "" {
			answers = append(answers, t.Answer)
		}
	}
	if len(answers) > n {
		answers = answers[len(answers)-n:]
	}
	return answers
}
