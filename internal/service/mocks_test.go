package service

import (
	"context"
	"sort"
	"sync"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/llm"
	"jizhuanti-go/pkg/tasks"
)

// fakeLLM 按预置脚本依次返回响应，记录收到的提示词。
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeLLM) Chat(ctx context.Context, system, prompt string, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "", llm.ErrNotConfigured
}

func (f *fakeLLM) StreamChat(ctx context.Context, system, prompt string, gen *llm.GenerationParams, writer llm.MessageWriter) (string, error) {
	return f.Chat(ctx, system, prompt, gen)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memTurnRepo 是 TurnRepository 的内存实现。
type memTurnRepo struct {
	mu     sync.Mutex
	nextID uint
	turns  []*model.ConversationTurn
}

func newMemTurnRepo() *memTurnRepo {
	return &memTurnRepo{nextID: 1}
}

func (r *memTurnRepo) Create(turn *model.ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.turns {
		if t.UserID == turn.UserID && t.Chapter == turn.Chapter &&
			t.SessionID == turn.SessionID && t.RoundNumber == turn.RoundNumber {
			t.Question = turn.Question
			t.Answer = turn.Answer
			turn.ID = t.ID
			return nil
		}
	}
	turn.ID = r.nextID
	r.nextID++
	cp := *turn
	r.turns = append(r.turns, &cp)
	return nil
}

func (r *memTurnRepo) FindBySession(userID, chapter, sessionID string) ([]model.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConversationTurn
	for _, t := range r.turns {
		if t.UserID == userID && t.Chapter == chapter && t.SessionID == sessionID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (r *memTurnRepo) FindByRound(userID, chapter, sessionID string, round int) (*model.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.turns {
		if t.UserID == userID && t.Chapter == chapter && t.SessionID == sessionID && t.RoundNumber == round {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTurnRepo) FindLatestUnanswered(userID, chapter, sessionID string) (*model.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.ConversationTurn
	for _, t := range r.turns {
		if t.UserID == userID && t.Chapter == chapter && t.SessionID == sessionID && t.Answer == "" {
			if latest == nil || t.RoundNumber > latest.RoundNumber {
				latest = t
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memTurnRepo) UpdateAnswer(turnID uint, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.turns {
		if t.ID == turnID {
			t.Answer = answer
			return nil
		}
	}
	return nil
}

func (r *memTurnRepo) FindAnswered(userID, chapter string) ([]model.ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConversationTurn
	for _, t := range r.turns {
		if t.UserID == userID && t.Question != "" && t.Answer != "" {
			if chapter != "" && t.Chapter != chapter {
				continue
			}
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chapter != out[j].Chapter {
			return out[i].Chapter < out[j].Chapter
		}
		return out[i].RoundNumber < out[j].RoundNumber
	})
	return out, nil
}

func (r *memTurnRepo) CountAnswered(userID, chapter string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, t := range r.turns {
		if t.UserID == userID && t.Chapter == chapter && t.Question != "" && t.Answer != "" {
			count++
		}
	}
	return count, nil
}

// memSummaryRepo 是 SummaryRepository 的内存实现。
type memSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]*model.ChapterSummary
}

func newMemSummaryRepo() *memSummaryRepo {
	return &memSummaryRepo{summaries: make(map[string]*model.ChapterSummary)}
}

func (r *memSummaryRepo) Find(userID, chapter string) (*model.ChapterSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.summaries[userID+"/"+chapter]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *memSummaryRepo) Upsert(summary *model.ChapterSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *summary
	r.summaries[summary.UserID+"/"+summary.Chapter] = &cp
	return nil
}

// memBioRepo 是 BiographyRepository 的内存实现。
type memBioRepo struct {
	mu   sync.Mutex
	bios []model.Biography
}

func (r *memBioRepo) Create(biography *model.Biography) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	biography.ID = uint(len(r.bios) + 1)
	r.bios = append(r.bios, *biography)
	return nil
}

func (r *memBioRepo) FindByUser(userID string) ([]model.Biography, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Biography
	for i := len(r.bios) - 1; i >= 0; i-- {
		if r.bios[i].UserID == userID {
			out = append(out, r.bios[i])
		}
	}
	return out, nil
}

// memSessionRepo 是 SessionRepository 的内存实现。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]string)}
}

func (r *memSessionRepo) GetOrCreateSessionID(ctx context.Context, userID, chapter string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "/" + chapter
	if id, ok := r.sessions[key]; ok {
		return id, false, nil
	}
	id := "session_test_" + key
	r.sessions[key] = id
	return id, true, nil
}

func (r *memSessionRepo) TouchSession(ctx context.Context, userID, chapter, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID+"/"+chapter] = sessionID
	return nil
}

// capturePublisher 记录发布过的摘要提取任务。
type capturePublisher struct {
	mu    sync.Mutex
	tasks []tasks.SummaryExtractionTask
}

func (p *capturePublisher) PublishSummaryTask(task tasks.SummaryExtractionTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *capturePublisher) published() []tasks.SummaryExtractionTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tasks.SummaryExtractionTask(nil), p.tasks...)
}

// captureIndexer 记录被索引的轮次。
type captureIndexer struct {
	mu    sync.Mutex
	turns []model.ConversationTurn
}

func (i *captureIndexer) IndexTurn(ctx context.Context, turn model.ConversationTurn) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.turns = append(i.turns, turn)
	return nil
}

// testChapter 构造带主题词表与题库的测试章节。
func testChapter() model.ChapterConfig {
	return model.ChapterConfig{
		Name:        "童年故里",
		Description: "童年时期的成长经历、家庭环境、故乡记忆",
		RequiredTopics: []model.TopicSpec{
			{Name: "家庭背景", Keywords: []string{"父母", "家里"}},
			{Name: "童年趣事", Keywords: []string{"好玩", "游戏"}},
			{Name: "学校生活", Keywords: []string{"小学", "上学"}},
			{Name: "故乡印象", Keywords: []string{"老家", "故乡"}},
		},
		FallbackQuestions: []string{
			"请描述一下您的童年生活环境，比如住在哪里？家里有哪些人？",
			"童年时期有什么让您印象深刻的事情吗？",
			"您的父母是做什么的？他们对您的成长有什么影响？",
			"您还记得小时候最喜欢做什么吗？",
			"故乡对您来说意味着什么？有什么难忘的回忆？",
		},
	}
}
