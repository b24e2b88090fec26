package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/internal/repository"
	"jizhuanti-go/pkg/llm"
)

// SummaryService 维护每个 (用户, 章节) 的累积摘要。
// 快路径在回答落库时同步做字面提取；深路径由后台任务调用 LLM 抽取结构化要点。
// 两条路径都通过同一个有界合并落到同一行摘要上，合并是幂等的。
type SummaryService interface {
	AccumulateFast(userID, chapter, answer string, topics []model.TopicSpec) error
	ExtractDeep(ctx context.Context, topics []string, answer string) (model.ExtractedFacts, error)
	MergeExtracted(userID, chapter string, facts model.ExtractedFacts) error
}

type summaryService struct {
	summaryRepo repository.SummaryRepository
	llmClient   llm.Client
	classifier  TopicClassifier
	maxItems    int
}

// NewSummaryService 创建一个新的 SummaryService 实例。
// maxItems 是摘要每个字段保留的条目上限。
func NewSummaryService(summaryRepo repository.SummaryRepository, llmClient llm.Client, classifier TopicClassifier, maxItems int) SummaryService {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &summaryService{summaryRepo: summaryRepo, llmClient: llmClient, classifier: classifier, maxItems: maxItems}
}

// 常见单字姓氏，用于"姓 + 称谓"形式的人物识别。
const surnameChars = "王李张刘陈杨赵黄周吴徐孙马朱胡郭何高林罗郑梁谢宋唐许韩冯邓曹彭"

// 人物称谓模式：姓氏加称谓（王老师、李叔叔），或独立的亲属称谓。
// 字面提取只求快，不求全，深路径会补充更完整的人物信息。
var peoplePattern = regexp.MustCompile(
	"[" + surnameChars + "](老师|先生|女士|同学|师傅|医生|大夫|教授|叔叔|阿姨)" +
		"|父亲|母亲|爸爸|妈妈|爷爷|奶奶|外公|外婆|老伴")

// AccumulateFast 在回答保存路径上同步提取人物称谓与主题命中并合并进摘要。
// 只做确定性的字面匹配，不碰网络。主题命中落入 KeyThemes 后即成为
// 持久证据：覆盖度评估只看最近几条回答，早期回答滑出窗口后靠这里兜底。
func (s *summaryService) AccumulateFast(userID, chapter, answer string, topics []model.TopicSpec) error {
	facts := model.ExtractedFacts{
		People: peoplePattern.FindAllString(answer, -1),
	}
	if s.classifier != nil {
		facts.Themes = s.classifier.DiscussedTopics([]string{answer}, topics)
	}
	if len(facts.People) == 0 && len(facts.Themes) == 0 {
		return nil
	}
	return s.MergeExtracted(userID, chapter, facts)
}

const extractionPrompt = `请从用户的这段讲述中提取结构化要点：

%s

以 JSON 格式输出，不要任何其他内容：
{"themes": ["主题词"], "people": ["人物称呼"], "events": ["具体事件"], "emotional_tone": "整体情感基调"}

要求：themes 只能从以下主题列表中选择，讲述中没有涉及的不要选：%s。
people 是讲述中出现的人物称呼；events 是具体发生过的事情，每条不超过 15 个字；没有的字段输出空数组。`

// ExtractDeep 调用 LLM 从一段回答中抽取主题、人物、事件与情感基调。
// 主题被限定在章节的必选主题列表内，保证提取结果能直接作为覆盖度证据。
// 模型输出可能混有说明文字，这里取首尾花括号之间的窗口再解析。
func (s *summaryService) ExtractDeep(ctx context.Context, topics []string, answer string) (model.ExtractedFacts, error) {
	var facts model.ExtractedFacts

	prompt := fmt.Sprintf(extractionPrompt, answer, strings.Join(topics, "、"))
	raw, err := s.llmClient.Chat(ctx, "", prompt, nil)
	if err != nil {
		return facts, err
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return facts, fmt.Errorf("%w: no json object in extraction output", llm.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &facts); err != nil {
		return facts, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	return facts, nil
}

// MergeExtracted 把一批要点合并进摘要并落库。
// 合并是保序去重的集合并：同一批要点重复合并不改变结果。
func (s *summaryService) MergeExtracted(userID, chapter string, facts model.ExtractedFacts) error {
	summary, err := s.summaryRepo.Find(userID, chapter)
	if err != nil {
		return fmt.Errorf("failed to load summary: %w", err)
	}
	if summary == nil {
		summary = &model.ChapterSummary{UserID: userID, Chapter: chapter}
	}

	summary.KeyThemes = mergeBounded(summary.KeyThemes, facts.Themes, s.maxItems)
	summary.KeyPeople = mergeBounded(summary.KeyPeople, facts.People, s.maxItems)
	summary.KeyEvents = mergeBounded(summary.KeyEvents, facts.Events, s.maxItems)
	if tone := strings.TrimSpace(facts.EmotionalTone); tone != "" {
		summary.EmotionalTone = tone
	}

	return s.summaryRepo.Upsert(summary)
}

// mergeBounded 做保序去重的并集，超限时保留最早进入的条目。
func mergeBounded(existing model.StringList, additions []string, max int) model.StringList {
	seen := make(map[string]struct{}, len(existing))
	merged := make(model.StringList, 0, len(existing)+len(additions))
	for _, item := range existing {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		merged = append(merged, item)
	}
	for _, item := range additions {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		merged = append(merged, item)
	}
	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
