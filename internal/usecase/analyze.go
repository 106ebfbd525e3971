package usecase

import (
	"fmt"
	"log/slog"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

// AnalysisCache is the typed slice of the cache the pipeline needs.
type AnalysisCache interface {
	GetAnalysis(ctx domain.Context, userID int64, kind domain.Kind, fingerprint string) (domain.Analysis, bool, error)
	SetAnalysis(ctx domain.Context, fingerprint string, a domain.Analysis) error
}

// AnalysisService orchestrates permission, price, prompt, LLM, cache and
// audit for one analysis request.
type AnalysisService struct {
	auth     *AuthService
	gold     domain.PriceSource
	forex    domain.ForexSource
	composer *PromptComposer
	llm      domain.LLMClient
	cache    AnalysisCache
	audit    *AuditRecorder
	clock    domain.Clock
	log      *slog.Logger
}

// NewAnalysisService wires the pipeline.
func NewAnalysisService(
	auth *AuthService,
	gold domain.PriceSource,
	forex domain.ForexSource,
	composer *PromptComposer,
	llm domain.LLMClient,
	cache AnalysisCache,
	audit *AuditRecorder,
	clock domain.Clock,
	log *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		auth:     auth,
		gold:     gold,
		forex:    forex,
		composer: composer,
		llm:      llm,
		cache:    cache,
		audit:    audit,
		clock:    clock,
		log:      log,
	}
}

// AnalyzeInput is one analysis request.
type AnalyzeInput struct {
	UserID  int64
	Kind    domain.Kind
	Context string // free-text context, e.g. chart description
	Pair    string // currency pair symbol for forex analyses
}

// AnalyzeResult is the pipeline outcome.
type AnalyzeResult struct {
	Analysis  domain.Analysis
	Cached    bool
	Remaining int
}

// Analyze runs the gold analysis pipeline. Cache hits are free: only novel
// work consumes quota.
func (s *AnalysisService) Analyze(ctx domain.Context, in AnalyzeInput) (AnalyzeResult, error) {
	if !in.Kind.Valid() {
		return AnalyzeResult{}, faultf(domain.ErrInvalidArgument, "نوع التحليل غير صحيح")
	}
	perm, err := s.auth.CanAnalyze(ctx, in.UserID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if !perm.Allowed {
		return AnalyzeResult{}, faultf(perm.Sentinel, perm.Message)
	}

	quote, err := s.gold.Current(ctx, true)
	var quotePtr *domain.PriceQuote
	if err == nil {
		quotePtr = &quote
	} else if in.Kind != domain.KindNews {
		// Price is mandatory outside the news flow; the aggregator's
		// fallbacks make this branch rare.
		return AnalyzeResult{}, faultf(domain.ErrUpstreamUnavailable, "تعذر جلب سعر الذهب حالياً")
	}

	return s.run(ctx, in, quotePtr, perm)
}

// AnalyzeForex runs the pipeline against a currency pair quote instead of
// the gold spot price.
func (s *AnalysisService) AnalyzeForex(ctx domain.Context, in AnalyzeInput) (AnalyzeResult, error) {
	if in.Kind == "" {
		in.Kind = domain.KindQuick
	}
	if !in.Kind.Valid() {
		return AnalyzeResult{}, faultf(domain.ErrInvalidArgument, "نوع التحليل غير صحيح")
	}
	perm, err := s.auth.CanAnalyze(ctx, in.UserID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if !perm.Allowed {
		return AnalyzeResult{}, faultf(perm.Sentinel, perm.Message)
	}

	quote, err := s.forex.Quote(ctx, in.Pair)
	if err != nil {
		return AnalyzeResult{}, err
	}
	in.Context = fmt.Sprintf("زوج العملات: %s\n%s", in.Pair, in.Context)
	return s.run(ctx, in, &quote, perm)
}

func (s *AnalysisService) run(ctx domain.Context, in AnalyzeInput, quote *domain.PriceQuote, perm Permission) (AnalyzeResult, error) {
	start := s.clock.Now()
	composed := s.composer.BuildContext(quote, in.Context)
	fp := Fingerprint(in.Kind, composed)

	if cached, ok, err := s.cache.GetAnalysis(ctx, in.UserID, in.Kind, fp); err == nil && ok {
		s.log.Info("analysis cache hit",
			slog.Int64("user_id", in.UserID),
			slog.String("kind", string(in.Kind)),
			slog.String("fingerprint", fp))
		return AnalyzeResult{Analysis: cached, Cached: true, Remaining: perm.Remaining}, nil
	}

	userMsg, err := s.composer.UserMessage(in.Kind, composed, start)
	if err != nil {
		return AnalyzeResult{}, err
	}
	resp, err := s.llm.Complete(ctx, domain.LLMRequest{
		SystemMessage: s.composer.SystemMessage(start),
		UserMessage:   userMsg,
		SessionID:     fmt.Sprintf("analysis_%d_%d", in.UserID, start.Unix()),
	})
	elapsed := s.clock.Now().Sub(start).Milliseconds()
	if err != nil {
		s.log.Warn("llm completion failed",
			slog.Int64("user_id", in.UserID),
			slog.String("kind", string(in.Kind)),
			slog.Any("error", err))
		s.audit.Record(newLog(in, perm.Tier, quote, false, elapsed, err.Error(), nil))
		return AnalyzeResult{}, faultf(domain.ErrUpstreamSemantic, "فشل التحليل، يرجى المحاولة مرة أخرى")
	}

	analysis := domain.Analysis{
		ID:           newID(),
		UserID:       in.UserID,
		Kind:         in.Kind,
		Content:      resp.Content,
		ModelUsed:    resp.ModelUsed,
		Language:     s.composer.Language(),
		TokensUsed:   resp.TokensUsed,
		ProcessingMS: elapsed,
		CreatedAt:    start.UTC(),
	}
	if quote != nil {
		p := quote.Price
		analysis.GoldPrice = &p
		c := quote.Change
		analysis.PriceChange = &c
	}

	if err := s.cache.SetAnalysis(ctx, fp, analysis); err != nil {
		s.log.Warn("analysis cache store failed", slog.Any("error", err))
	}

	consumed, err := s.auth.RecordAnalysis(ctx, in.UserID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if !consumed {
		// Concurrent requests raced the last quota unit away; the generated
		// content is not returned to keep the daily limit invariant exact.
		s.audit.Record(newLog(in, perm.Tier, quote, false, elapsed, "quota raced out", nil))
		return AnalyzeResult{}, faultf(domain.ErrQuotaExhausted, "تم استنفاد حد التحليلات اليومية")
	}

	s.audit.Record(newLog(in, perm.Tier, quote, true, elapsed, "", resp.TokensUsed))

	remaining, err := s.auth.Remaining(ctx, in.UserID)
	if err != nil {
		remaining = perm.Remaining - 1
	}
	return AnalyzeResult{Analysis: analysis, Remaining: remaining}, nil
}

func newLog(in AnalyzeInput, tier domain.Tier, quote *domain.PriceQuote, success bool, elapsed int64, errMsg string, tokens *int) domain.AnalysisLog {
	l := domain.AnalysisLog{
		ID:           newID(),
		UserID:       in.UserID,
		Kind:         in.Kind,
		Success:      success,
		ProcessingMS: elapsed,
		ErrorMessage: errMsg,
		UserTier:     tier,
		TokensUsed:   tokens,
	}
	if quote != nil {
		p := quote.Price
		l.PriceAtReq = &p
	}
	return l
}
