package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/log"
	"jizhuanti-go/pkg/similarity"
)

// QuestionOptions 汇集提问编排的调优参数，来源于配置文件。
type QuestionOptions struct {
	SimilarityThreshold float64
	MinQuestionLength   int
	MaxRetries          int
	QuestionTimeout     time.Duration
}

// QuestionService 负责为下一轮访谈选出一个可用的问题。
// 三级策略：LLM 生成 -> 带修正提示的有限重试 -> 确定性兜底。
// 无论 LLM 处于什么状态，本服务总能返回一个问题。
type QuestionService interface {
	NextQuestion(ctx context.Context, chapter model.ChapterConfig, turns []model.ConversationTurn, summary *model.ChapterSummary, missing []string) string
	ReturningOpener(ctx context.Context, chapter model.ChapterConfig, summary *model.ChapterSummary) string
}

type questionService struct {
	llmClient llm.Client
	opts      QuestionOptions

	// 未配置密钥只在首次发现时记一条日志，之后静默降级
	notConfiguredOnce sync.Once
}

// NewQuestionService 创建一个新的 QuestionService 实例。
func NewQuestionService(llmClient llm.Client, opts QuestionOptions) QuestionService {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.6
	}
	if opts.MinQuestionLength <= 0 {
		opts.MinQuestionLength = 20
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 2
	}
	if opts.QuestionTimeout <= 0 {
		opts.QuestionTimeout = 20 * time.Second
	}
	return &questionService{llmClient: llmClient, opts: opts}
}

// 模板化问题的形状："关于X，您能详细说说……吗"。这类输出信息量低，按不合格处理。
var templatedQuestionPattern = regexp.MustCompile(`^关于.{1,20}[，,]?\s*(您|你)(能|可以|方便|愿意)?(再)?(详细|具体|多)?(说说|谈谈|讲讲|聊聊|分享|介绍)`)

// 模型输出里常见的前缀标签与包装符号
var (
	questionLabelPattern = regexp.MustCompile(`^(问题|问|Q|下一个问题|追问)\s*[:：.、]?\s*`)
	leadingParenPattern  = regexp.MustCompile(`^(（[^）]*）|\([^)]*\))\s*`)
	thinkTagPattern      = regexp.MustCompile(`(?s)<(think|thinking|reasoning|thought)>.*?</(think|thinking|reasoning|thought)>`)
)

// NextQuestion 返回下一轮要问的问题。
// 首轮跳过生成直接使用章节开场问题；其余轮次按三级策略编排。
func (s *questionService) NextQuestion(ctx context.Context, chapter model.ChapterConfig, turns []model.ConversationTurn, summary *model.ChapterSummary, missing []string) string {
	if len(turns) == 0 {
		return chapter.OpeningQuestion()
	}

	asked := askedQuestions(turns)
	base := s.buildPrompt(chapter, turns, summary, missing)
	last := lastAnswer(turns)

	var rejected []string
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		prompt := base
		if len(rejected) > 0 {
			prompt = s.amendPrompt(base, rejected, last, missing)
		}

		raw, err := s.chat(ctx, prompt)
		if err != nil {
			if errors.Is(err, llm.ErrNotConfigured) {
				s.notConfiguredOnce.Do(func() {
					log.Warnf("LLM 未配置，问题生成走确定性兜底: %v", err)
				})
				break
			}
			if !llm.IsTransient(err) {
				log.Warnf("问题生成不可重试，转入兜底: %v", err)
				break
			}
			log.Warnf("问题生成第 %d 次尝试失败: %v", attempt+1, err)
			continue
		}

		question := CleanQuestion(raw)
		if reason := s.validate(question, asked); reason != "" {
			log.Infof("问题生成第 %d 次尝试被拒绝(%s): %s", attempt+1, reason, question)
			if question != "" {
				rejected = append(rejected, question)
			}
			continue
		}
		return question
	}

	return s.fallbackQuestion(chapter, asked, missing)
}

// ReturningOpener 为"隔了一段时间回来"的用户生成欢迎回来式开场。
// 生成失败时退回固定欢迎语加章节开场问题。
func (s *questionService) ReturningOpener(ctx context.Context, chapter model.ChapterConfig, summary *model.ChapterSummary) string {
	prompt := fmt.Sprintf(
		"用户之前和你聊过「%s」章节的人生经历，现在隔了一段时间回来继续。\n%s请生成一句温暖的欢迎语，并自然地衔接一个继续深入这个章节的问题。只输出这一句话，不要任何解释。",
		chapter.Name, summaryBrief(summary))

	raw, err := s.chat(ctx, prompt)
	if err == nil {
		if q := CleanQuestion(raw); utf8.RuneCountInString(q) >= s.opts.MinQuestionLength {
			return q
		}
	}
	return "欢迎回来！我们继续聊聊您的故事。" + chapter.OpeningQuestion()
}

func (s *questionService) chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QuestionTimeout)
	defer cancel()
	return s.llmClient.Chat(ctx, interviewerSystemPrompt, prompt, nil)
}

// validate 返回空字符串表示合格，否则返回拒绝原因。
func (s *questionService) validate(question string, asked []string) string {
	if question == "" {
		return "empty"
	}
	if utf8.RuneCountInString(question) < s.opts.MinQuestionLength {
		return "too_short"
	}
	if templatedQuestionPattern.MatchString(question) {
		return "templated"
	}
	if similarity.IsDuplicate(question, asked, s.opts.SimilarityThreshold) {
		return "duplicate"
	}
	return ""
}

// fallbackQuestion 是确定性的第三级：题库中第一条本会话未用过的问题，
// 题库耗尽时锚定缺失主题提问，再不行就用最通用的收束问题。
func (s *questionService) fallbackQuestion(chapter model.ChapterConfig, asked []string, missing []string) string {
	for _, q := range chapter.FallbackQuestions {
		if !containsExact(asked, q) {
			return q
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("我们还没怎么聊过「%s」，这方面您有什么印象深刻的经历吗？", missing[0])
	}
	return "还有什么想分享的故事吗？"
}

const interviewerSystemPrompt = "你是一位温暖、专业的人物传记访谈师，善于倾听并从对方的讲述中发现值得展开的细节。你的问题口语化、具体、一次只问一件事。"

// buildPrompt 组装主提示词：章节背景、近期对话、已知要点、缺失主题。
func (s *questionService) buildPrompt(chapter model.ChapterConfig, turns []model.ConversationTurn, summary *model.ChapterSummary, missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你正在为一本个人传记采访用户，当前章节是「%s」：%s\n\n", chapter.Name, chapter.Description)

	b.WriteString("最近的对话：\n")
	recent := turns
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, t := range recent {
		fmt.Fprintf(&b, "问：%s\n", t.Question)
		if t.Answer != "" {
			fmt.Fprintf(&b, "答：%s\n", t.Answer)
		}
	}
	b.WriteString("\n")

	if brief := summaryBrief(summary); brief != "" {
		b.WriteString(brief)
	}
	if len(missing) > 0 {
		limit := missing
		if len(limit) > 3 {
			limit = limit[:3]
		}
		fmt.Fprintf(&b, "本章节还没有聊到的主题：%s\n", strings.Join(limit, "、"))
	}

	b.WriteString("\n请生成下一个访谈问题。要求：\n")
	b.WriteString("1. 优先围绕还没聊到的主题，或深挖用户刚才提到的细节\n")
	b.WriteString("2. 不要重复已经问过的问题，也不要换个说法问同一件事\n")
	b.WriteString("3. 具体、口语化，让用户容易回忆起画面\n")
	b.WriteString("4. 只输出问题本身，不要编号、引号或任何解释\n")
	return b.String()
}

// amendPrompt 在主提示词上追加被拒问题清单与针对性引导，供重试使用。
func (s *questionService) amendPrompt(base string, rejected []string, lastAnswer string, missing []string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n注意：以下问题已经问过或不合格，请生成角度完全不同的问题：\n")
	for _, q := range rejected {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	if snippet := answerSnippet(lastAnswer, 40); snippet != "" {
		fmt.Fprintf(&b, "可以针对用户刚才说的「%s」追问具体细节", snippet)
		if len(missing) > 0 {
			fmt.Fprintf(&b, "，或引导到「%s」这个还没聊到的主题", missing[0])
		}
		b.WriteString("。\n")
	}
	return b.String()
}

func summaryBrief(summary *model.ChapterSummary) string {
	if summary == nil {
		return ""
	}
	var parts []string
	if len(summary.KeyThemes) > 0 {
		parts = append(parts, "已聊到的主题："+strings.Join(summary.KeyThemes, "、"))
	}
	if len(summary.KeyPeople) > 0 {
		parts = append(parts, "提到过的人物："+strings.Join(summary.KeyPeople, "、"))
	}
	if len(summary.KeyEvents) > 0 {
		parts = append(parts, "提到过的事件："+strings.Join(summary.KeyEvents, "、"))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}

// CleanQuestion 把模型原始输出规整为一条干净的问题文本：
// 去掉思考标签、前缀标签、包装引号和开头的舞台说明。
func CleanQuestion(raw string) string {
	q := thinkTagPattern.ReplaceAllString(raw, "")
	q = strings.TrimSpace(q)
	q = questionLabelPattern.ReplaceAllString(q, "")
	q = leadingParenPattern.ReplaceAllString(q, "")
	q = strings.Trim(q, "\"'“”‘’「」『』")
	return strings.TrimSpace(q)
}

// askedQuestions 收集会话中已出现过的问题文本。
func askedQuestions(turns []model.ConversationTurn) []string {
	questions := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Question != "" {
			questions = append(questions, t.Question)
		}
	}
	return questions
}

// lastAnswer 返回会话中最后一条非空回答。
func lastAnswer(turns []model.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Answer != "" {
			return turns[i].Answer
		}
	}
	return ""
}

// answerSnippet 截取回答开头不超过 maxRunes 个字符作为个性化片段。
func answerSnippet(answer string, maxRunes int) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ""
	}
	runes := []rune(answer)
	if len(runes) <= maxRunes {
		return answer
	}
	return string(runes[:maxRunes])
}

func containsExact(list []string, s string) bool {
	for _, item := range list {
		if strings.TrimSpace(item) == strings.TrimSpace(s) {
			return true
		}
	}
	return false
}
