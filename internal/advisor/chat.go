package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/i474232898/irrigation-assistant/internal/advice"
	"github.com/i474232898/irrigation-assistant/internal/common"
	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

var (
	rainKeywords     = []string{"مطر", "أمطار", "pluie", "rain"}
	humidityKeywords = []string{"رطوبة", "humidity"}
	pumpKeywords     = []string{"مضخة", "pump"}
)

const (
	replyRain    = "إذا كان هناك احتمال أمطار عالي، لا تحتاج للنقاس فورا. احمي النباتات فقط إذا كانت الأمطار قوية."
	replyDefault = "شكراً لسؤالك. لا تتردد في طرح المزيد من التفاصيل حول المحصول أو الموقع للحصول على نصيحة دقيقة."
)

// ChatResponder answers observer questions with the advice generator and
// falls back to keyword rules when it is unavailable.
type ChatResponder struct {
	generator advice.Generator
	log       weather.ForecastLog
	horizon   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewChatResponder(generator advice.Generator, log weather.ForecastLog, horizon time.Duration, logger *slog.Logger) *ChatResponder {
	if horizon <= 0 {
		horizon = weather.DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatResponder{
		generator: generator,
		log:       log,
		horizon:   horizon,
		now:       time.Now,
		logger:    logger,
	}
}

// Reply answers text given the current device state. It always returns a reply.
func (c *ChatResponder) Reply(ctx context.Context, text string, state livestate.DeviceState) string {
	if c.generator != nil {
		if cc, ok := c.generator.(credentialChecker); !ok || cc.CheckCredentials() == nil {
			reply, err := c.generator.Generate(ctx, advice.Request{
				System:      chatSystem,
				User:        chatPrompt(text, c.forecastTable(ctx)),
				Temperature: chatTemperature,
				MaxTokens:   chatMaxTokens,
			})
			if err == nil {
				return reply
			}
			c.logger.WarnContext(ctx, "chat generation failed, using fallback", "error", err)
		}
	}
	return FallbackReply(text, state)
}

func (c *ChatResponder) forecastTable(ctx context.Context) string {
	if c.log == nil {
		return ""
	}
	records, err := c.log.ReadAll(ctx)
	if err != nil {
		return ""
	}
	batch, err := weather.LatestWindow(records, c.now(), c.horizon)
	if err != nil || batch.Len() == 0 {
		return ""
	}
	return weather.FormatTable(batch.Records)
}

// FallbackReply is the rule-based answer used without a language model.
func FallbackReply(text string, state livestate.DeviceState) string {
	switch {
	case common.HasAnyFold(text, rainKeywords...):
		return replyRain
	case common.HasAnyFold(text, humidityKeywords...):
		level := "رطبة"
		if state.Humidity < livestate.DryHumidity {
			level = "جافة"
		}
		return fmt.Sprintf("الرطوبة الحالية %s%%، %s - اضبط الري وفق الحاجة.",
			strconv.FormatFloat(state.Humidity, 'f', -1, 64), level)
	case common.HasAnyFold(text, pumpKeywords...):
		status := "مطفأة"
		if state.PumpOn {
			status = "مشتغلة"
		}
		return fmt.Sprintf("المضخة حالياً %s. يمكنك تغيير الحالة من لوحة التحكم.", status)
	default:
		return replyDefault
	}
}
