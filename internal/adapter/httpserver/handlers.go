package httpserver

import (
	"bytes"
	"encoding/base64"
	"image"
	"net/http"
	"strings"
	"time"

	// Registered so image.DecodeConfig can size the common chart formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/goldnightmare/analysis-api/internal/adapter/price"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

// kindCatalog is the static /analysis-types payload, in display order.
var kindCatalog = []envelope{
	{"id": string(domain.KindQuick), "name_ar": "تحليل سريع", "description_ar": "نظرة سريعة على الاتجاه مع توصية واحدة"},
	{"id": string(domain.KindDetailed), "name_ar": "تحليل مفصل", "description_ar": "تحليل فني شامل مع خطة تداول وسيناريوهات"},
	{"id": string(domain.KindChart), "name_ar": "تحليل الشارت", "description_ar": "قراءة النماذج والمستويات من وصف الشارت"},
	{"id": string(domain.KindNews), "name_ar": "تحليل الأخبار", "description_ar": "أثر العوامل الاقتصادية على الذهب"},
	{"id": string(domain.KindForecast), "name_ar": "توقعات الأسعار", "description_ar": "توقعات أسبوعية وشهرية مع سيناريوهات"},
}

// HealthHandler is the liveness probe.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, envelope{
			"status":      "healthy",
			"api_running": s.Analysis != nil,
			"timestamp":   s.Clock.Now().UTC().Format(time.RFC3339),
		})
	}
}

// GoldPriceHandler returns the current quote plus the Arabic market block.
func (s *Server) GoldPriceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Gold == nil {
			writeNotInitialised(w)
			return
		}
		quote, err := s.Gold.Current(r.Context(), true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{
			"price_data":     quote,
			"formatted_text": quote.ArabicText(),
		})
	}
}

// normalizePair maps "EUR/USD", "eur-usd" and "eurusd" onto the catalog
// symbol form.
func normalizePair(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	raw = strings.ReplaceAll(raw, "/", "")
	return strings.ReplaceAll(raw, "-", "")
}

// ForexPriceHandler returns the quote for one supported currency pair.
func (s *Server) ForexPriceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Forex == nil {
			writeNotInitialised(w)
			return
		}
		symbol := normalizePair(chi.URLParam(r, "pair"))
		quote, err := s.Forex.Quote(r.Context(), symbol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, envelope{
			"pair":       symbol,
			"price_data": quote,
		})
	}
}

// ForexPairsHandler lists the supported currency pairs with Arabic names.
func (s *Server) ForexPairsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		pairs := make([]envelope, 0, len(price.SupportedPairs))
		for _, p := range price.SupportedPairs {
			pairs = append(pairs, envelope{"symbol": p.Symbol, "name_ar": p.ArabicName})
		}
		writeOK(w, envelope{"pairs": pairs})
	}
}

// AnalysisTypesHandler returns the static analysis catalog.
func (s *Server) AnalysisTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, envelope{"types": kindCatalog})
	}
}

// APIStatusHandler reports the upstream health snapshot.
func (s *Server) APIStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var goldAPIs []price.ProviderStatus
		if s.Gold != nil {
			goldAPIs = s.Gold.Status()
		}
		writeOK(w, envelope{
			"status": envelope{
				"gold_apis":  goldAPIs,
				"claude_ai":  s.Cfg.ClaudeAPIKey != "",
				"checked_at": s.Clock.Now().UTC().Format(time.RFC3339),
			},
		})
	}
}

type analyzeRequest struct {
	AnalysisType      string `json:"analysis_type" validate:"required"`
	UserQuestion      string `json:"user_question"`
	AdditionalContext string `json:"additional_context"`
	UserID            int64  `json:"user_id" validate:"required,gt=0"`
}

// composeContext merges the free-text request fields into one prompt block.
func composeContext(question, extra string) string {
	var parts []string
	if q := strings.TrimSpace(question); q != "" {
		parts = append(parts, "سؤال المستخدم: "+q)
	}
	if e := strings.TrimSpace(extra); e != "" {
		parts = append(parts, e)
	}
	return strings.Join(parts, "\n")
}

// analysisPayload shapes one pipeline result for the wire.
func analysisPayload(res usecase.AnalyzeResult) envelope {
	out := envelope{
		"analysis":           res.Analysis.Content,
		"analysis_id":        res.Analysis.ID,
		"processing_time":    float64(res.Analysis.ProcessingMS) / 1000,
		"remaining_analyses": res.Remaining,
		"cached":             res.Cached,
	}
	if res.Analysis.GoldPrice != nil {
		out["gold_price"] = *res.Analysis.GoldPrice
	}
	return out
}

// AnalyzeHandler runs the gold analysis pipeline for one request.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Analysis == nil {
			writeNotInitialised(w)
			return
		}
		var req analyzeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "بيانات الطلب غير مكتملة")
			return
		}
		res, err := s.Analysis.Analyze(r.Context(), usecase.AnalyzeInput{
			UserID:  req.UserID,
			Kind:    domain.Kind(strings.ToLower(req.AnalysisType)),
			Context: composeContext(req.UserQuestion, req.AdditionalContext),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, analysisPayload(res))
	}
}

type analyzeForexRequest struct {
	Pair              string `json:"pair" validate:"required"`
	AnalysisType      string `json:"analysis_type"`
	AdditionalContext string `json:"additional_context"`
	UserID            int64  `json:"user_id" validate:"required,gt=0"`
}

// AnalyzeForexHandler runs the pipeline against a currency pair quote.
func (s *Server) AnalyzeForexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Analysis == nil {
			writeNotInitialised(w)
			return
		}
		var req analyzeForexRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "بيانات الطلب غير مكتملة")
			return
		}
		symbol := normalizePair(req.Pair)
		res, err := s.Analysis.AnalyzeForex(r.Context(), usecase.AnalyzeInput{
			UserID:  req.UserID,
			Kind:    domain.Kind(strings.ToLower(req.AnalysisType)),
			Context: strings.TrimSpace(req.AdditionalContext),
			Pair:    symbol,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := analysisPayload(res)
		out["pair"] = symbol
		writeOK(w, out)
	}
}

type analyzeChartRequest struct {
	ImageData     string `json:"image_data" validate:"required"`
	CurrencyPair  string `json:"currency_pair"`
	Timeframe     string `json:"timeframe"`
	AnalysisNotes string `json:"analysis_notes"`
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
}

// chartImageInfo is the decoded-image summary echoed to the client.
type chartImageInfo struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Format string  `json:"format"`
	SizeKB float64 `json:"size_kb"`
}

// inspectChartImage decodes the base64 payload and verifies it is a
// reasonably sized image of a supported format.
func (s *Server) inspectChartImage(data string) ([]byte, chartImageInfo, error) {
	// Tolerate data-URL payloads from browser canvases.
	if i := strings.Index(data, ";base64,"); i >= 0 {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, chartImageInfo{}, usecase.Faultf(domain.ErrInvalidArgument, "صورة الشارت غير صالحة")
	}
	if int64(len(raw)) > s.Cfg.MaxChartImageMB*1024*1024 {
		return nil, chartImageInfo{}, usecase.Faultf(domain.ErrInvalidArgument, "حجم صورة الشارت كبير جداً")
	}
	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, chartImageInfo{}, usecase.Faultf(domain.ErrInvalidArgument, "الملف المرفق ليس صورة")
	}
	info := chartImageInfo{
		Format: strings.TrimPrefix(mt.Extension(), "."),
		SizeKB: float64(len(raw)) / 1024,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return raw, info, nil
}

// AnalyzeChartHandler accepts a base64 chart screenshot and runs the chart
// analysis flow on its description.
func (s *Server) AnalyzeChartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Analysis == nil {
			writeNotInitialised(w)
			return
		}
		var req analyzeChartRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeFailure(w, http.StatusBadRequest, "بيانات الطلب غير مكتملة")
			return
		}
		_, info, err := s.inspectChartImage(req.ImageData)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var b strings.Builder
		b.WriteString("شارت مرفوع من المستخدم")
		if p := strings.TrimSpace(req.CurrencyPair); p != "" {
			b.WriteString("\nالزوج: " + p)
		}
		if tf := strings.TrimSpace(req.Timeframe); tf != "" {
			b.WriteString("\nالإطار الزمني: " + tf)
		}
		if n := strings.TrimSpace(req.AnalysisNotes); n != "" {
			b.WriteString("\nملاحظات: " + n)
		}

		res, err := s.Analysis.Analyze(r.Context(), usecase.AnalyzeInput{
			UserID:  req.UserID,
			Kind:    domain.KindChart,
			Context: b.String(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := analysisPayload(res)
		out["image_info"] = info
		writeOK(w, out)
	}
}
