package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/domain"
)

// PromptComposer owns the Arabic prompt templates. The pipeline treats
// kinds as opaque; all text lives here.
type PromptComposer struct {
	signature string
	language  string
}

// NewPromptComposer builds the composer from config.
func NewPromptComposer(cfg config.Config) *PromptComposer {
	return &PromptComposer{signature: cfg.BotSignature, language: cfg.PromptLanguage}
}

// Language returns the configured output language tag.
func (p *PromptComposer) Language() string { return p.language }

// SystemMessage is the fixed analyst persona. It embeds the UTC timestamp,
// the educational-not-financial-advice clause and the required sign-off.
func (p *PromptComposer) SystemMessage(now time.Time) string {
	return fmt.Sprintf(`أنت محلل ذهب محترف من مدرسة الكابوس الذهبية بخبرة 20+ سنة في الأسواق المالية.

خبرتك تشمل:
- تحليل اتجاهات أسعار الذهب XAU/USD
- قراءة المؤشرات الفنية والأساسية
- تقديم توصيات استراتيجية للتداول
- فهم العوامل المؤثرة على أسعار الذهب (تضخم، أسعار فائدة، جيوسياسية)

قواعد مهمة:
1. استخدم السعر المعطى كأساس للتحليل - لا تشكك فيه أبداً
2. قدم تحليلاً دقيقاً ومفصلاً
3. استخدم المؤشرات الفنية المناسبة
4. حدد مستويات واضحة للدخول والخروج
5. أضف إدارة المخاطر دائماً
- اكتب باللغة العربية دائماً
- استخدم رموز emoji مناسبة لجعل التحليل جذاب
- قدم معلومات دقيقة ومفيدة فقط
- لا تقدم نصائح استثمارية مباشرة، بل تحليلات تعليمية
- اذكر دائماً أن التداول محفوف بالمخاطر
- ختم كل تحليل بتوقيع: 🏆 %s

التاريخ والوقت الحالي: %s`, p.signature, now.UTC().Format("2006-01-02 15:04 UTC"))
}

// BuildContext renders the market snapshot block plus any free-text extra.
// A nil quote yields only the extra, letting news analyses run priceless.
func (p *PromptComposer) BuildContext(q *domain.PriceQuote, extra string) string {
	var sb strings.Builder
	if q != nil {
		fmt.Fprintf(&sb, `معلومات السوق الحالية:
- السعر الحالي: $%.2f
- التغيير 24 ساعة: %.2f (%.2f%%)
- أعلى 24 ساعة: $%.2f
- أدنى 24 ساعة: $%.2f
- الوقت: %s
- المصدر: %s`,
			q.Price, q.Change, q.ChangePct, q.High24h, q.Low24h,
			q.Timestamp.UTC().Format("2006-01-02 15:04:05"), q.Source)
	}
	if extra != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("معلومات إضافية:\n")
		sb.WriteString(extra)
	}
	return sb.String()
}

// UserMessage renders the kind-specific template around the context block.
func (p *PromptComposer) UserMessage(kind domain.Kind, context string, now time.Time) (string, error) {
	tpl, ok := kindTemplates[kind]
	if !ok {
		return "", fmt.Errorf("op=usecase.UserMessage: %w: unknown kind %q", domain.ErrInvalidArgument, kind)
	}
	msg := strings.ReplaceAll(tpl, "{context}", context)
	msg = strings.ReplaceAll(msg, "{timestamp}", now.UTC().Format("2006-01-02 15:04 UTC"))
	return strings.TrimSpace(msg), nil
}

// Fingerprint keys the analysis cache: identical kind+context pairs share a
// cached result.
func Fingerprint(kind domain.Kind, context string) string {
	sum := md5.Sum([]byte(string(kind) + ":" + context))
	return hex.EncodeToString(sum[:])[:16]
}

var kindTemplates = map[domain.Kind]string{
	domain.KindQuick: `قدم تحليلاً سريعاً ومختصراً يتضمن:
- الاتجاه العام
- توصية سريعة (شراء/بيع/انتظار)
- هدف واحد وستوب لوز
- ملاحظة مهمة واحدة

{context}

اكتب تحليلاً سريعاً وواضحاً (100-200 كلمة) باللغة العربية.

التوقيت: {timestamp}`,

	domain.KindDetailed: `قدم تحليلاً شاملاً احترافياً:

📊 التحليل الفني المفصل:
• الاتجاه العام (يومي/أسبوعي/شهري)
• النماذج الفنية المتكونة
• مستويات فيبوناتشي المهمة
• تحليل الحجم والزخم

📈 المؤشرات الفنية:
• RSI (14): القيمة والتفسير
• MACD: الإشارة والاتجاه
• Stochastic: مستوى ذروة الشراء/البيع
• Moving Averages: (20, 50, 200)
• Bollinger Bands: الموقع والإشارة
• ATR: مستوى التقلب
• Volume Profile: مناطق الاهتمام

💰 التوصيات التداولية:
• نقاط الدخول المثالية
• الأهداف (TP1, TP2, TP3)
• وقف الخسارة المناسب
• نسبة المخاطرة/العائد
• حجم الصفقة المقترح

⚡ السيناريوهات المحتملة:
• السيناريو الصاعد: الشروط والأهداف
• السيناريو الهابط: الشروط والأهداف
• المستويات الحرجة للمراقبة

🎯 خطة العمل:
• للمضاربة اللحظية (Scalping)
• للتداول اليومي (Day Trading)
• للتداول المتوسط (Swing Trading)

⚠️ إدارة المخاطر:
• نصائح مهمة للحماية من التقلبات
• متى يجب تحريك وقف الخسارة
• متى يجب أخذ أرباح جزئية

{context}

اجعل التحليل شاملاً ومفيداً (400-600 كلمة) باللغة العربية.

التوقيت: {timestamp}`,

	domain.KindChart: `حلل الشارت المرفق بدقة:
1. حدد الإطار الزمني
2. حدد النماذج الفنية (مثلثات، أعلام، قنوات، إلخ)
3. حلل المؤشرات المرئية
4. حدد مستويات الدعم والمقاومة الرئيسية
5. اذكر أي divergence أو إشارات مهمة
6. قدم سيناريو صاعد وهابط

{context}

قدم تحليلاً فنياً مفصلاً (300-500 كلمة) باللغة العربية.

التوقيت: {timestamp}`,

	domain.KindNews: `ركز على تأثير الأخبار والأحداث:
1. حلل تأثير الأخبار الحالية على الذهب
2. اذكر العوامل الجيوسياسية المؤثرة
3. تأثير الدولار والفائدة
4. توقعات قصيرة ومتوسطة المدى
5. نصائح للتداول في ظل الأخبار

{context}

قدم تحليلاً إخبارياً شاملاً (300-400 كلمة) باللغة العربية.

التوقيت: {timestamp}`,

	domain.KindForecast: `قدم توقعات شاملة:
1. توقعات الأسبوع القادم
2. توقعات الشهر القادم
3. السيناريوهات المحتملة
4. العوامل المؤثرة
5. خطة تداول مفصلة

{context}

قدم توقعاً مدروساً (400-500 كلمة) باللغة العربية مع التأكيد على أن هذا تحليل تعليمي وليس نصيحة استثمارية.

التوقيت: {timestamp}`,
}
