package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/llm"
)

func summaryFixture(client *fakeLLM, maxItems int) (SummaryService, *memSummaryRepo) {
	repo := newMemSummaryRepo()
	svc := NewSummaryService(repo, client, NewKeywordClassifier(), maxItems)
	return svc, repo
}

func TestAccumulateFast_ExtractsPeople(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 10)

	err := svc.AccumulateFast("u1", "童年故里", "那时候王老师对我特别好，李叔叔也常来家里", testChapter().RequiredTopics)
	require.NoError(t, err)

	summary, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.Equal(t, model.StringList{"王老师", "李叔叔"}, summary.KeyPeople)
}

func TestAccumulateFast_PersistsTopicHits(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 10)

	err := svc.AccumulateFast("u1", "童年故里", "我父母都是农民，家里种地为生", testChapter().RequiredTopics)
	require.NoError(t, err)

	summary, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.Contains(t, []string(summary.KeyThemes), "家庭背景", "关键词命中的主题要落进摘要")
}

func TestAccumulateFast_NothingExtractedNoWrite(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 10)

	require.NoError(t, svc.AccumulateFast("u1", "童年故里", "那年夏天特别热", testChapter().RequiredTopics))

	summary, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)
	require.Nil(t, summary, "没有提取到人物或主题时不应创建摘要行")
}

func TestExtractDeep_ParsesBraceWindow(t *testing.T) {
	client := &fakeLLM{responses: []string{
		"好的，提取结果如下：\n{\"themes\": [\"童年趣事\"], \"people\": [\"王老师\"], \"events\": [\"河里摸鱼\"], \"emotional_tone\": \"怀念\"}\n以上就是全部内容。",
	}}
	svc, _ := summaryFixture(client, 10)

	facts, err := svc.ExtractDeep(context.Background(), testChapter().TopicNames(), "小时候常去河里摸鱼，王老师带我们去的")
	require.NoError(t, err)
	require.Equal(t, []string{"童年趣事"}, facts.Themes)
	require.Equal(t, []string{"王老师"}, facts.People)
	require.Equal(t, []string{"河里摸鱼"}, facts.Events)
	require.Equal(t, "怀念", facts.EmotionalTone)
}

func TestExtractDeep_PromptConstrainsThemesToTopicList(t *testing.T) {
	client := &fakeLLM{responses: []string{`{"themes": [], "people": [], "events": [], "emotional_tone": ""}`}}
	svc, _ := summaryFixture(client, 10)

	_, err := svc.ExtractDeep(context.Background(), testChapter().TopicNames(), "小时候常去河里摸鱼")
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	require.Contains(t, client.prompts[0], "只能从以下主题列表中选择")
	for _, name := range testChapter().TopicNames() {
		require.Contains(t, client.prompts[0], name, "提示词要列出章节的全部主题名")
	}
}

func TestExtractDeep_NoJSONIsMalformed(t *testing.T) {
	client := &fakeLLM{responses: []string{"抱歉，我无法完成这个任务"}}
	svc, _ := summaryFixture(client, 10)

	_, err := svc.ExtractDeep(context.Background(), testChapter().TopicNames(), "随便说点什么")
	require.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestMergeExtracted_Idempotent(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 10)
	facts := model.ExtractedFacts{
		Themes:        []string{"童年趣事", "家庭背景"},
		People:        []string{"王老师"},
		Events:        []string{"河里摸鱼"},
		EmotionalTone: "怀念",
	}

	require.NoError(t, svc.MergeExtracted("u1", "童年故里", facts))
	first, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)

	// 同一批要点重复合并不改变结果
	require.NoError(t, svc.MergeExtracted("u1", "童年故里", facts))
	second, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)

	require.Equal(t, first.KeyThemes, second.KeyThemes)
	require.Equal(t, first.KeyPeople, second.KeyPeople)
	require.Equal(t, first.KeyEvents, second.KeyEvents)
	require.Equal(t, first.EmotionalTone, second.EmotionalTone)
}

func TestMergeExtracted_PreservesOrderAndTruncates(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 3)

	require.NoError(t, svc.MergeExtracted("u1", "童年故里", model.ExtractedFacts{
		Themes: []string{"主题一", "主题二"},
	}))
	require.NoError(t, svc.MergeExtracted("u1", "童年故里", model.ExtractedFacts{
		Themes: []string{"主题三", "主题四", "主题五"},
	}))

	summary, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)
	// 超限时保留最早进入的条目
	require.Equal(t, model.StringList{"主题一", "主题二", "主题三"}, summary.KeyThemes)
}

func TestMergeExtracted_KeepsToneWhenAbsent(t *testing.T) {
	svc, repo := summaryFixture(&fakeLLM{}, 10)

	require.NoError(t, svc.MergeExtracted("u1", "童年故里", model.ExtractedFacts{EmotionalTone: "怀念"}))
	require.NoError(t, svc.MergeExtracted("u1", "童年故里", model.ExtractedFacts{Themes: []string{"童年趣事"}}))

	summary, err := repo.Find("u1", "童年故里")
	require.NoError(t, err)
	require.Equal(t, "怀念", summary.EmotionalTone, "新批次没有情感基调时保留旧值")
}
