// Package pipeline 实现了后台摘要提取任务的处理器。
package pipeline

import (
	"context"
	"errors"
	"time"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/internal/service"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/log"
	"jizhuanti-go/pkg/tasks"
)

// Processor 消费摘要提取任务：调用 LLM 抽取结构化要点并合并进章节摘要。
// 实现 kafka.TaskProcessor。
type Processor struct {
	summaryService service.SummaryService
	chapters       map[string]model.ChapterConfig
	timeout        time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(summaryService service.SummaryService, chapters map[string]model.ChapterConfig, extractionTimeout time.Duration) *Processor {
	if extractionTimeout <= 0 {
		extractionTimeout = 10 * time.Second
	}
	return &Processor{summaryService: summaryService, chapters: chapters, timeout: extractionTimeout}
}

// Process 处理一个摘要提取任务。
// 提取的主题被限定在任务所属章节的主题列表内。
// 未配置 LLM 时静默完成：快路径摘要已经覆盖了基本需求，重试没有意义。
func (p *Processor) Process(ctx context.Context, task tasks.SummaryExtractionTask) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var topics []string
	if ch, ok := p.chapters[task.Chapter]; ok {
		topics = ch.TopicNames()
	}
	facts, err := p.summaryService.ExtractDeep(ctx, topics, task.Answer)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			log.Infof("LLM 未配置，跳过深度提取: %s", task.Key())
			return nil
		}
		return err
	}
	return p.summaryService.MergeExtracted(task.UserID, task.Chapter, facts)
}
