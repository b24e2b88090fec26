package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/tasks"
)

// fakeSummaryService 脚本化深度提取与合并的行为。
type fakeSummaryService struct {
	extractFacts  model.ExtractedFacts
	extractErr    error
	extractTopics [][]string
	merged        []model.ExtractedFacts
	mergeErr      error
}

func (f *fakeSummaryService) AccumulateFast(userID, chapter, answer string, topics []model.TopicSpec) error {
	return nil
}

func (f *fakeSummaryService) ExtractDeep(ctx context.Context, topics []string, answer string) (model.ExtractedFacts, error) {
	f.extractTopics = append(f.extractTopics, topics)
	return f.extractFacts, f.extractErr
}

func (f *fakeSummaryService) MergeExtracted(userID, chapter string, facts model.ExtractedFacts) error {
	f.merged = append(f.merged, facts)
	return f.mergeErr
}

func testChapters() map[string]model.ChapterConfig {
	return map[string]model.ChapterConfig{
		"童年故里": {
			Name: "童年故里",
			RequiredTopics: []model.TopicSpec{
				{Name: "家庭背景"},
				{Name: "童年趣事"},
			},
		},
	}
}

func TestProcess_MergesExtractedFacts(t *testing.T) {
	svc := &fakeSummaryService{
		extractFacts: model.ExtractedFacts{Themes: []string{"童年趣事"}},
	}
	p := NewProcessor(svc, testChapters(), time.Second)

	err := p.Process(context.Background(), tasks.SummaryExtractionTask{
		UserID: "u1", Chapter: "童年故里", Round: 1, Answer: "小时候常去河里摸鱼",
	})
	require.NoError(t, err)
	require.Len(t, svc.merged, 1)
	require.Equal(t, []string{"童年趣事"}, svc.merged[0].Themes)
}

func TestProcess_PassesChapterTopicsToExtraction(t *testing.T) {
	svc := &fakeSummaryService{}
	p := NewProcessor(svc, testChapters(), time.Second)

	err := p.Process(context.Background(), tasks.SummaryExtractionTask{
		UserID: "u1", Chapter: "童年故里", Round: 1, Answer: "小时候常去河里摸鱼",
	})
	require.NoError(t, err)
	require.Len(t, svc.extractTopics, 1)
	require.Equal(t, []string{"家庭背景", "童年趣事"}, svc.extractTopics[0])
}

func TestProcess_NotConfiguredCompletesSilently(t *testing.T) {
	svc := &fakeSummaryService{extractErr: llm.ErrNotConfigured}
	p := NewProcessor(svc, testChapters(), time.Second)

	err := p.Process(context.Background(), tasks.SummaryExtractionTask{UserID: "u1", Chapter: "童年故里"})
	require.NoError(t, err, "未配置模型时任务应视为完成，不触发重试")
	require.Empty(t, svc.merged)
}

func TestProcess_TransientErrorPropagates(t *testing.T) {
	extractErr := errors.New("upstream timeout")
	svc := &fakeSummaryService{extractErr: extractErr}
	p := NewProcessor(svc, testChapters(), time.Second)

	err := p.Process(context.Background(), tasks.SummaryExtractionTask{UserID: "u1", Chapter: "童年故里"})
	require.ErrorIs(t, err, extractErr)
}
