package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/llm"
)

func testQuestionOptions() QuestionOptions {
	return QuestionOptions{
		SimilarityThreshold: 0.6,
		MinQuestionLength:   20,
		MaxRetries:          2,
		QuestionTimeout:     time.Second,
	}
}

func turnsWithHistory() []model.ConversationTurn {
	return []model.ConversationTurn{
		{RoundNumber: 1, Question: "请描述一下您的童年生活环境，比如住在哪里？家里有哪些人？", Answer: "我在山东农村长大，家里五口人"},
	}
}

func TestNextQuestion_FirstRoundUsesOpening(t *testing.T) {
	client := &fakeLLM{}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), nil, nil, nil)

	require.Equal(t, "请描述一下您的童年生活环境，比如住在哪里？家里有哪些人？", q)
	require.Zero(t, client.callCount(), "首轮不应调用模型")
}

func TestNextQuestion_AcceptsValidGeneration(t *testing.T) {
	client := &fakeLLM{responses: []string{"您刚才提到在农村长大，那时候村里的孩子们平时都玩些什么？"}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, []string{"童年趣事"})

	require.Equal(t, "您刚才提到在农村长大，那时候村里的孩子们平时都玩些什么？", q)
	require.Equal(t, 1, client.callCount())
}

func TestNextQuestion_CleansModelOutput(t *testing.T) {
	client := &fakeLLM{responses: []string{"<think>要问趣事</think>问题：「您刚才提到在农村长大，那时候村里的孩子们平时都玩些什么？」"}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, nil)

	require.Equal(t, "您刚才提到在农村长大，那时候村里的孩子们平时都玩些什么？", q)
}

func TestNextQuestion_DuplicatesExhaustRetriesThenFallback(t *testing.T) {
	// 模型固执地复读已问过的问题，重试额度用完后落到题库
	dup := "请描述一下您的童年生活环境，比如住在哪里？家里有哪些人？"
	client := &fakeLLM{responses: []string{dup, dup, dup}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, nil)

	require.Equal(t, 3, client.callCount(), "主调用加两次重试")
	require.Equal(t, "童年时期有什么让您印象深刻的事情吗？", q, "题库中第一条未问过的问题")
}

func TestNextQuestion_RetryPromptNamesRejected(t *testing.T) {
	dup := "请描述一下您的童年生活环境，比如住在哪里？家里有哪些人？"
	client := &fakeLLM{responses: []string{dup, "您还记得小时候家乡的集市是什么样子吗？最喜欢去哪个摊位？"}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, []string{"故乡印象"})

	require.Equal(t, "您还记得小时候家乡的集市是什么样子吗？最喜欢去哪个摊位？", q)
	require.Equal(t, 2, client.callCount())
	require.Contains(t, client.prompts[1], dup, "重试提示词应列出被拒绝的问题")
	require.Contains(t, client.prompts[1], "我在山东农村长大", "重试提示词应引用用户最近的回答片段")
}

func TestNextQuestion_RejectsTooShort(t *testing.T) {
	client := &fakeLLM{responses: []string{"然后呢？", "太短", "还有吗"}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, nil)

	require.Equal(t, "童年时期有什么让您印象深刻的事情吗？", q)
}

func TestNextQuestion_RejectsTemplatedShape(t *testing.T) {
	templated := "关于您的父母，您能详细说说他们平时是怎么照顾您的吗？"
	client := &fakeLLM{responses: []string{templated, templated, templated}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, nil)

	require.NotEqual(t, templated, q)
	require.Equal(t, "童年时期有什么让您印象深刻的事情吗？", q)
}

func TestNextQuestion_NotConfiguredSkipsRetries(t *testing.T) {
	client := &fakeLLM{errs: []error{llm.ErrNotConfigured}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), testChapter(), turnsWithHistory(), nil, nil)

	require.Equal(t, 1, client.callCount(), "未配置密钥时不应重试")
	require.Equal(t, "童年时期有什么让您印象深刻的事情吗？", q)
}

func TestNextQuestion_FallbackNeverRepeatsWithinSession(t *testing.T) {
	ch := testChapter()
	turns := []model.ConversationTurn{}
	for i, q := range ch.FallbackQuestions {
		turns = append(turns, model.ConversationTurn{RoundNumber: i + 1, Question: q, Answer: "嗯，是这样的"})
	}
	client := &fakeLLM{errs: []error{llm.ErrNotConfigured}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), ch, turns, nil, []string{"学校生活"})

	require.NotContains(t, ch.FallbackQuestions, q, "题库耗尽后不得复用")
	require.Contains(t, q, "学校生活", "应锚定缺失主题提问")
}

func TestNextQuestion_LastResortGenericQuestion(t *testing.T) {
	ch := testChapter()
	turns := []model.ConversationTurn{}
	for i, q := range ch.FallbackQuestions {
		turns = append(turns, model.ConversationTurn{RoundNumber: i + 1, Question: q, Answer: "嗯"})
	}
	client := &fakeLLM{errs: []error{llm.ErrNotConfigured}}
	svc := NewQuestionService(client, testQuestionOptions())

	q := svc.NextQuestion(context.Background(), ch, turns, nil, nil)

	require.Equal(t, "还有什么想分享的故事吗？", q)
}

func TestCleanQuestion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "去掉前缀标签", raw: "问：您小时候住在哪里？", want: "您小时候住在哪里？"},
		{name: "去掉包装引号", raw: "“您小时候住在哪里？”", want: "您小时候住在哪里？"},
		{name: "去掉开头括注", raw: "（温和地）您小时候住在哪里？", want: "您小时候住在哪里？"},
		{name: "去掉思考标签", raw: "<think>先问住处</think>您小时候住在哪里？", want: "您小时候住在哪里？"},
		{name: "纯空白", raw: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CleanQuestion(tt.raw))
		})
	}
}
