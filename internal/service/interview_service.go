package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/internal/repository"
	"jizhuanti-go/pkg/kafka"
	"jizhuanti-go/pkg/log"
	"jizhuanti-go/pkg/tasks"
)

// 业务错误，由 handler 映射到 HTTP 状态码。
var (
	ErrUnknownChapter = errors.New("unknown chapter")
	ErrTurnNotFound   = errors.New("no pending turn to answer")
	ErrEmptyAnswer    = errors.New("answer must not be empty")
)

// MemoryIndexer 把已回答的轮次写入记忆检索索引。
type MemoryIndexer interface {
	IndexTurn(ctx context.Context, turn model.ConversationTurn) error
}

// InterviewResult 是一次访谈推进的返回载荷。
type InterviewResult struct {
	Question      string   `json:"question"`
	SessionID     string   `json:"sessionId"`
	RoundNumber   int      `json:"roundNumber"`
	Coverage      int      `json:"coverage"`
	MissingTopics []string `json:"missingTopics"`
}

// InterviewService 是访谈推进的控制器：串起会话记忆、历史加载、
// 覆盖度评估、问题编排与轮次落库。
type InterviewService interface {
	GetNextQuestion(ctx context.Context, userID, chapter, sessionID string) (*InterviewResult, error)
	SaveAnswerAndAdvance(ctx context.Context, userID, chapter, sessionID string, round int, answer string) (*InterviewResult, error)
}

type interviewService struct {
	turnRepo    repository.TurnRepository
	summaryRepo repository.SummaryRepository
	sessionRepo repository.SessionRepository
	coverage    CoverageService
	question    QuestionService
	summary     SummaryService
	publisher   kafka.Publisher
	indexer     MemoryIndexer
	chapters    map[string]model.ChapterConfig
	welcomeBack bool
}

// NewInterviewService 创建一个新的 InterviewService 实例。
// publisher 与 indexer 允许为 nil（对应组件未启用时），相关步骤会被跳过。
func NewInterviewService(
	turnRepo repository.TurnRepository,
	summaryRepo repository.SummaryRepository,
	sessionRepo repository.SessionRepository,
	coverage CoverageService,
	question QuestionService,
	summary SummaryService,
	publisher kafka.Publisher,
	indexer MemoryIndexer,
	chapters map[string]model.ChapterConfig,
	welcomeBack bool,
) InterviewService {
	return &interviewService{
		turnRepo:    turnRepo,
		summaryRepo: summaryRepo,
		sessionRepo: sessionRepo,
		coverage:    coverage,
		question:    question,
		summary:     summary,
		publisher:   publisher,
		indexer:     indexer,
		chapters:    chapters,
		welcomeBack: welcomeBack,
	}
}

// GetNextQuestion 生成并持久化下一轮问题。
// 客户端未携带会话令牌时，优先续用 Redis 记忆的当前会话。
func (s *interviewService) GetNextQuestion(ctx context.Context, userID, chapter, sessionID string) (*InterviewResult, error) {
	ch, ok := s.chapters[chapter]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChapter, chapter)
	}

	if sessionID == "" {
		var err error
		sessionID, _, err = s.sessionRepo.GetOrCreateSessionID(ctx, userID, chapter)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session: %w", err)
		}
	} else if err := s.sessionRepo.TouchSession(ctx, userID, chapter, sessionID); err != nil {
		// 会话记忆失效不影响本次请求
		log.Warnf("续期会话令牌失败: %v", err)
	}

	turns, err := s.turnRepo.FindBySession(userID, chapter, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	// 上一轮问题还没回答时直接重发，避免堆积未回答轮次
	if pending := latestUnanswered(turns); pending != nil {
		cov := s.evaluate(ch, userID, chapter, turns)
		return &InterviewResult{
			Question:      pending.Question,
			SessionID:     sessionID,
			RoundNumber:   pending.RoundNumber,
			Coverage:      cov.Coverage,
			MissingTopics: topMissing(cov.MissingTopics),
		}, nil
	}

	return s.advance(ctx, ch, userID, chapter, sessionID, turns)
}

// SaveAnswerAndAdvance 保存一轮回答并返回下一轮问题。
// 快路径摘要、后台提取任务与记忆索引都是尽力而为，失败只记日志。
func (s *interviewService) SaveAnswerAndAdvance(ctx context.Context, userID, chapter, sessionID string, round int, answer string) (*InterviewResult, error) {
	ch, ok := s.chapters[chapter]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChapter, chapter)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	turn, err := s.resolveTurn(userID, chapter, sessionID, round)
	if err != nil {
		return nil, err
	}

	if err := s.turnRepo.UpdateAnswer(turn.ID, answer); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	turn.Answer = answer

	if err := s.summary.AccumulateFast(userID, chapter, answer, ch.RequiredTopics); err != nil {
		log.Warnf("快路径摘要更新失败: %v", err)
	}
	if s.publisher != nil {
		task := tasks.SummaryExtractionTask{UserID: userID, Chapter: chapter, Round: turn.RoundNumber, Answer: answer}
		if err := s.publisher.PublishSummaryTask(task); err != nil {
			log.Warnf("发布摘要提取任务失败: %v", err)
		}
	}
	if s.indexer != nil {
		if err := s.indexer.IndexTurn(ctx, *turn); err != nil {
			log.Warnf("写入记忆索引失败: %v", err)
		}
	}

	turns, err := s.turnRepo.FindBySession(userID, chapter, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload conversation history: %w", err)
	}
	return s.advance(ctx, ch, userID, chapter, sessionID, turns)
}

// resolveTurn 定位要写回答的轮次：优先精确轮次号，客户端轮次号
// 过期时回落到最近一条未回答的轮次做对账。
func (s *interviewService) resolveTurn(userID, chapter, sessionID string, round int) (*model.ConversationTurn, error) {
	if round > 0 {
		turn, err := s.turnRepo.FindByRound(userID, chapter, sessionID, round)
		if err != nil {
			return nil, fmt.Errorf("failed to locate turn: %w", err)
		}
		if turn != nil && !turn.Answered() {
			return turn, nil
		}
	}
	turn, err := s.turnRepo.FindLatestUnanswered(userID, chapter, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to locate unanswered turn: %w", err)
	}
	if turn == nil {
		return nil, ErrTurnNotFound
	}
	return turn, nil
}

// advance 评估覆盖度、生成下一轮问题并落库。
func (s *interviewService) advance(ctx context.Context, ch model.ChapterConfig, userID, chapter, sessionID string, turns []model.ConversationTurn) (*InterviewResult, error) {
	summary, err := s.summaryRepo.Find(userID, chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	cov := s.coverage.Evaluate(ch, turns, summary)

	var question string
	if len(turns) == 0 && s.welcomeBack && s.hasPriorMaterial(userID, chapter) {
		question = s.question.ReturningOpener(ctx, ch, summary)
	} else {
		question = s.question.NextQuestion(ctx, ch, turns, summary, cov.MissingTopics)
	}

	round := maxRound(turns) + 1
	turn := &model.ConversationTurn{
		UserID:      userID,
		Chapter:     chapter,
		SessionID:   sessionID,
		RoundNumber: round,
		Question:    question,
	}
	if err := s.turnRepo.Create(turn); err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	return &InterviewResult{
		Question:      question,
		SessionID:     sessionID,
		RoundNumber:   round,
		Coverage:      cov.Coverage,
		MissingTopics: topMissing(cov.MissingTopics),
	}, nil
}

func (s *interviewService) evaluate(ch model.ChapterConfig, userID, chapter string, turns []model.ConversationTurn) CoverageResult {
	summary, err := s.summaryRepo.Find(userID, chapter)
	if err != nil {
		log.Warnf("加载摘要失败: %v", err)
		summary = nil
	}
	return s.coverage.Evaluate(ch, turns, summary)
}

// hasPriorMaterial 报告用户在该章节是否已有历史回答（跨会话）。
func (s *interviewService) hasPriorMaterial(userID, chapter string) bool {
	count, err := s.turnRepo.CountAnswered(userID, chapter)
	if err != nil {
		log.Warnf("统计历史回答失败: %v", err)
		return false
	}
	return count > 0
}

func latestUnanswered(turns []model.ConversationTurn) *model.ConversationTurn {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Question != "" && turns[i].Answer == "" {
			return &turns[i]
		}
	}
	return nil
}

func maxRound(turns []model.ConversationTurn) int {
	max := 0
	for _, t := range turns {
		if t.RoundNumber > max {
			max = t.RoundNumber
		}
	}
	return max
}

func topMissing(missing []string) []string {
	if len(missing) > 5 {
		return missing[:5]
	}
	return missing
}
