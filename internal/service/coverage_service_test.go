package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"jizhuanti-go/internal/model"
)

func TestEvaluate_NoEvidence(t *testing.T) {
	svc := NewCoverageService(NewKeywordClassifier(), 5)

	result := svc.Evaluate(testChapter(), nil, nil)

	require.Equal(t, 0, result.Coverage)
	require.Equal(t, []string{"家庭背景", "童年趣事", "学校生活", "故乡印象"}, result.MissingTopics)
}

func TestEvaluate_KeywordHits(t *testing.T) {
	svc := NewCoverageService(NewKeywordClassifier(), 5)
	turns := []model.ConversationTurn{
		{RoundNumber: 1, Question: "q1", Answer: "我父母都是农民，家里种地为生"},
		{RoundNumber: 2, Question: "q2", Answer: "小学离家三里地，每天走着上学"},
	}

	result := svc.Evaluate(testChapter(), turns, nil)

	require.Equal(t, 50, result.Coverage)
	require.Equal(t, []string{"童年趣事", "故乡印象"}, result.MissingTopics)
}

func TestEvaluate_SummaryThemesCount(t *testing.T) {
	svc := NewCoverageService(NewKeywordClassifier(), 5)
	summary := &model.ChapterSummary{
		KeyThemes: model.StringList{"童年趣事", "无关主题"},
	}

	result := svc.Evaluate(testChapter(), nil, summary)

	require.Equal(t, 25, result.Coverage)
	require.NotContains(t, result.MissingTopics, "童年趣事")
	// 摘要里不属于必选主题的词不参与评估
	require.Len(t, result.MissingTopics, 3)
}

func TestEvaluate_MergesBothSources(t *testing.T) {
	svc := NewCoverageService(NewKeywordClassifier(), 5)
	turns := []model.ConversationTurn{
		{RoundNumber: 1, Question: "q1", Answer: "老家在山东的一个小村子"},
	}
	summary := &model.ChapterSummary{KeyThemes: model.StringList{"家庭背景"}}

	result := svc.Evaluate(testChapter(), turns, summary)

	require.Equal(t, 50, result.Coverage)
	require.Equal(t, []string{"童年趣事", "学校生活"}, result.MissingTopics)
}

func TestEvaluate_RecentWindowLimit(t *testing.T) {
	// 窗口为 1 时只看最后一条回答
	svc := NewCoverageService(NewKeywordClassifier(), 1)
	turns := []model.ConversationTurn{
		{RoundNumber: 1, Question: "q1", Answer: "我父母都是工人"},
		{RoundNumber: 2, Question: "q2", Answer: "老家的河边特别好玩"},
	}

	result := svc.Evaluate(testChapter(), turns, nil)

	require.Contains(t, result.MissingTopics, "家庭背景")
	require.NotContains(t, result.MissingTopics, "故乡印象")
	require.NotContains(t, result.MissingTopics, "童年趣事")
}

func TestEvaluate_EmptyTopicList(t *testing.T) {
	svc := NewCoverageService(NewKeywordClassifier(), 5)

	result := svc.Evaluate(model.ChapterConfig{Name: "空章节"}, nil, nil)

	require.Equal(t, 0, result.Coverage)
	require.Empty(t, result.MissingTopics)
}
