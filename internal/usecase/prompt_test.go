package usecase_test

import (
	"testing"
	"time"

	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComposer() *usecase.PromptComposer {
	return usecase.NewPromptComposer(config.Config{
		BotSignature:   "Gold Nightmare – عدي",
		PromptLanguage: "arabic",
	})
}

func TestSystemMessageEmbedsPersonaAndSignature(t *testing.T) {
	msg := newComposer().SystemMessage(baseTime)
	assert.Contains(t, msg, "محلل ذهب محترف")
	assert.Contains(t, msg, "Gold Nightmare – عدي")
	assert.Contains(t, msg, "تحليلات تعليمية")
	assert.Contains(t, msg, "2026-08-24 09:00 UTC")
}

func TestBuildContextWithQuote(t *testing.T) {
	q := &domain.PriceQuote{
		Price:     3310.06,
		Change:    15.52,
		ChangePct: 0.47,
		High24h:   3325.89,
		Low24h:    3298.43,
		Source:    "goldapi",
		Timestamp: baseTime,
	}
	ctx := newComposer().BuildContext(q, "سؤال إضافي")
	assert.Contains(t, ctx, "$3310.06")
	assert.Contains(t, ctx, "15.52 (0.47%)")
	assert.Contains(t, ctx, "goldapi")
	assert.Contains(t, ctx, "معلومات إضافية:\nسؤال إضافي")
}

func TestBuildContextWithoutQuote(t *testing.T) {
	ctx := newComposer().BuildContext(nil, "أخبار الفيدرالي")
	assert.NotContains(t, ctx, "السعر الحالي")
	assert.Contains(t, ctx, "أخبار الفيدرالي")
}

func TestUserMessagePerKind(t *testing.T) {
	c := newComposer()
	expectations := map[domain.Kind]string{
		domain.KindQuick:    "100-200 كلمة",
		domain.KindDetailed: "400-600 كلمة",
		domain.KindChart:    "حلل الشارت المرفق",
		domain.KindNews:     "تأثير الأخبار",
		domain.KindForecast: "توقعات الأسبوع القادم",
	}
	for kind, want := range expectations {
		msg, err := c.UserMessage(kind, "CONTEXT-BLOCK", baseTime)
		require.NoError(t, err)
		assert.Contains(t, msg, want, kind)
		assert.Contains(t, msg, "CONTEXT-BLOCK", kind)
		assert.Contains(t, msg, "2026-08-24 09:00 UTC", kind)
	}
}

func TestUserMessageUnknownKind(t *testing.T) {
	_, err := newComposer().UserMessage(domain.Kind("bogus"), "", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFingerprintStableAndShort(t *testing.T) {
	fp1 := usecase.Fingerprint(domain.KindQuick, "same context")
	fp2 := usecase.Fingerprint(domain.KindQuick, "same context")
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 16)

	assert.NotEqual(t, fp1, usecase.Fingerprint(domain.KindDetailed, "same context"))
	assert.NotEqual(t, fp1, usecase.Fingerprint(domain.KindQuick, "other context"))
}
