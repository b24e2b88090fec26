package service

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/internal/repository"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/log"
)

// ErrNoMaterial 表示用户还没有任何已回答的轮次，无法合成传记。
// 这个前置检查在任何 LLM 调用之前完成。
var ErrNoMaterial = errors.New("no answered turns to synthesize from")

// BiographyExporter 把渲染好的传记 HTML 导出到对象存储并返回访问链接。
type BiographyExporter interface {
	Export(ctx context.Context, objectName, html string) (string, error)
}

// BiographyOptions 汇集传记合成的调优参数。
type BiographyOptions struct {
	Timeout      time.Duration
	Styles       map[string]string
	DefaultTitle string
}

// BiographyResult 是一次传记合成的结果。
type BiographyResult struct {
	Title        string          `json:"title"`
	Chapter      string          `json:"chapter"`
	WritingStyle string          `json:"writingStyle"`
	Content      string          `json:"content"`
	WordCount    int             `json:"wordCount"`
	GeneratedAt  model.LocalTime `json:"generatedAt"`
	ExportURL    string          `json:"exportUrl,omitempty"`
}

// SynthesisRequest 描述一次传记合成：素材范围、文风、标题与是否留档。
type SynthesisRequest struct {
	UserID       string
	Chapter      string // 为空表示用全部章节素材
	WritingStyle string
	Title        string
	SkipSave     bool // 只预览，不写 biographies 表
}

// BiographyService 把已回答的访谈素材合成为指定文风的传记文本。
type BiographyService interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*BiographyResult, error)
	SynthesizeStream(ctx context.Context, req SynthesisRequest, writer llm.MessageWriter) (*BiographyResult, error)
	ListBiographies(userID string) ([]model.Biography, error)
}

type biographyService struct {
	turnRepo  repository.TurnRepository
	bioRepo   repository.BiographyRepository
	llmClient llm.Client
	exporter  BiographyExporter
	opts      BiographyOptions
}

// NewBiographyService 创建一个新的 BiographyService 实例。
// exporter 为 nil 时跳过 HTML 导出。
func NewBiographyService(
	turnRepo repository.TurnRepository,
	bioRepo repository.BiographyRepository,
	llmClient llm.Client,
	exporter BiographyExporter,
	opts BiographyOptions,
) BiographyService {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = "我的人生故事"
	}
	return &biographyService{
		turnRepo:  turnRepo,
		bioRepo:   bioRepo,
		llmClient: llmClient,
		exporter:  exporter,
		opts:      opts,
	}
}

// Synthesize 用已回答的素材合成传记，持久化并导出 HTML。
func (s *biographyService) Synthesize(ctx context.Context, req SynthesisRequest) (*BiographyResult, error) {
	return s.synthesize(ctx, req, nil)
}

// SynthesizeStream 与 Synthesize 相同，但把生成分块实时写入 writer。
func (s *biographyService) SynthesizeStream(ctx context.Context, req SynthesisRequest, writer llm.MessageWriter) (*BiographyResult, error) {
	return s.synthesize(ctx, req, writer)
}

func (s *biographyService) synthesize(ctx context.Context, req SynthesisRequest, writer llm.MessageWriter) (*BiographyResult, error) {
	turns, err := s.turnRepo.FindAnswered(req.UserID, req.Chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview material: %w", err)
	}
	if len(turns) == 0 {
		return nil, ErrNoMaterial
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = s.opts.DefaultTitle
	}
	prompt := s.buildPrompt(turns, req.Chapter, req.WritingStyle, title)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var raw string
	if writer != nil {
		raw, err = s.llmClient.StreamChat(ctx, biographerSystemPrompt, prompt, nil, writer)
	} else {
		raw, err = s.llmClient.Chat(ctx, biographerSystemPrompt, prompt, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize biography: %w", err)
	}

	content := CleanThinking(raw)
	if content == "" {
		return nil, fmt.Errorf("%w: empty biography content", llm.ErrMalformedResponse)
	}

	styleKey := styleKeyOrDefault(req.WritingStyle)
	if !req.SkipSave {
		record := &model.Biography{
			UserID:       req.UserID,
			Chapter:      req.Chapter,
			Title:        title,
			WritingStyle: styleKey,
			Content:      content,
			Status:       "completed",
		}
		if err := s.bioRepo.Create(record); err != nil {
			return nil, fmt.Errorf("failed to persist biography: %w", err)
		}
	}

	result := &BiographyResult{
		Title:        title,
		Chapter:      req.Chapter,
		WritingStyle: styleKey,
		Content:      content,
		WordCount:    utf8.RuneCountInString(content),
		GeneratedAt:  model.LocalTime(time.Now()),
	}

	if s.exporter != nil {
		objectName := fmt.Sprintf("biographies/%s/%d.html", req.UserID, time.Now().UnixMilli())
		url, err := s.exporter.Export(ctx, objectName, RenderBiographyHTML(title, content))
		if err != nil {
			// 导出失败不影响合成结果
			log.Warnf("导出传记 HTML 失败: %v", err)
		} else {
			result.ExportURL = url
		}
	}
	return result, nil
}

// ListBiographies 按创建时间倒序返回用户的历史传记。
func (s *biographyService) ListBiographies(userID string) ([]model.Biography, error) {
	return s.bioRepo.FindByUser(userID)
}

const biographerSystemPrompt = "你是一位资深的传记作家，擅长把口述素材编织成真挚动人的生命故事。你只使用素材中真实出现的人物与事件，绝不编造。"

func (s *biographyService) buildPrompt(turns []model.ConversationTurn, chapter, style, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请根据以下访谈素材，为传主撰写一篇题为《%s》的传记", title)
	if chapter != "" {
		fmt.Fprintf(&b, "，聚焦「%s」这段经历", chapter)
	}
	b.WriteString("。\n\n")

	if desc := s.styleDescription(style); desc != "" {
		fmt.Fprintf(&b, "文风要求：%s\n\n", desc)
	}

	b.WriteString("访谈素材（按时间顺序）：\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "问：%s\n答：%s\n", t.Question, t.Answer)
	}

	b.WriteString("\n写作要求：\n")
	b.WriteString("1. 以第一人称或贴近的第三人称叙述，保持口述的真实感\n")
	b.WriteString("2. 只使用素材中出现的人物、地点和事件，不得虚构\n")
	b.WriteString("3. 篇幅控制在 2000-3000 字\n")
	b.WriteString("4. 直接输出传记正文，不要任何标题标记或说明文字\n")
	return b.String()
}

func (s *biographyService) styleDescription(style string) string {
	if desc, ok := s.opts.Styles[style]; ok {
		return desc
	}
	return "文字温暖平实，细节丰富，像一位老朋友在讲述。"
}

func styleKeyOrDefault(style string) string {
	if strings.TrimSpace(style) == "" {
		return "default"
	}
	return style
}

var thinkingBlockPattern = regexp.MustCompile(`(?s)<(think|thinking|reasoning|thought)>.*?</(think|thinking|reasoning|thought)>`)

// CleanThinking 移除推理模型混入正文的思考标签块。
func CleanThinking(raw string) string {
	return strings.TrimSpace(thinkingBlockPattern.ReplaceAllString(raw, ""))
}

var biographyPage = template.Must(template.New("biography").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: "Songti SC", "SimSun", serif; max-width: 720px; margin: 40px auto; padding: 0 24px; line-height: 2; color: #333; }
h1 { text-align: center; font-size: 28px; margin-bottom: 48px; }
p { text-indent: 2em; margin: 0 0 12px; }
footer { margin-top: 64px; text-align: center; color: #999; font-size: 13px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}<footer>生成于 {{.Date}}</footer>
</body>
</html>
`))

// RenderBiographyHTML 把传记正文渲染为可分享的独立 HTML 页面。
func RenderBiographyHTML(title, content string) string {
	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	var b strings.Builder
	err := biographyPage.Execute(&b, map[string]interface{}{
		"Title":      title,
		"Paragraphs": paragraphs,
		"Date":       time.Now().Format("2006年01月02日"),
	})
	if err != nil {
		log.Errorf("渲染传记页面失败: %v", err)
		return content
	}
	return b.String()
}
