package service

import (
	"context"

	"tamgiao-hitl/internal/alert"
	"tamgiao-hitl/internal/models"
	"tamgiao-hitl/internal/moderation"

	"go.uber.org/zap"
)

// vietnamHotline is the crisis line attached to every critical-risk reply.
var vietnamHotline = models.Hotline{
	Name:      "Đường dây nóng Ngày Mai",
	Phone:     "096 306 1414",
	Available: "13h-20h30 hàng ngày",
}

// HandleUserMessage scores one chat message and runs the crisis side
// effects. The supportive reply is unconditional: alert or notification
// failures are logged loudly but never gate the user-visible response.
func (s *HITLService) HandleUserMessage(ctx context.Context, userID, sessionID, message string) (*models.ChatReply, error) {
	result := s.pipeline.Score(message)

	reply := &models.ChatReply{
		Reply:      supportiveReply(result.RiskLevel),
		RiskLevel:  result.RiskLevel,
		Moderation: &result,
	}
	if result.RiskLevel == models.RiskCritical {
		reply.Hotline = &vietnamHotline
	}
	if s.config.Privacy.RedactMessages {
		redacted := result
		redacted.NormalizedText = moderation.RedactionPlaceholder
		reply.Moderation = &redacted
	}

	if result.RiskLevel != models.RiskCritical {
		return reply, nil
	}

	a, err := s.manager.CreateCriticalAlert(ctx, userID, sessionID, alert.CreateDetails{
		RiskType:         moderation.RiskTypeFor(result),
		RiskLevel:        result.RiskLevel,
		RiskScore:        result.RiskScore,
		UserMessage:      message,
		MessageDigest:    result.MessageDigest,
		DetectedKeywords: detectedKeywords(result),
		Moderation:       result,
	})
	if err != nil {
		s.logger.Error("Failed to create critical alert",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.String("message_digest", result.MessageDigest),
			zap.Float64("risk_score", result.RiskScore),
			zap.Bool("safety_event", true),
			zap.Error(err),
		)
		return reply, nil
	}
	reply.AlertID = a.AlertID
	return reply, nil
}

func detectedKeywords(result models.ModerationResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sig := range result.Signals {
		for _, term := range sig.MatchedTerms {
			if !seen[term] {
				seen[term] = true
				out = append(out, term)
			}
		}
	}
	return out
}

// supportiveReply picks the conversational safety message for a risk level.
// Always present; hotline info is attached separately at critical.
func supportiveReply(level models.RiskLevel) string {
	switch level {
	case models.RiskCritical:
		return "Mình rất lo cho bạn lúc này. Bạn không phải trải qua điều này một mình: một chuyên gia sẽ tham gia cuộc trò chuyện ngay bây giờ. Nếu bạn đang gặp nguy hiểm, hãy gọi 115 ngay lập tức."
	case models.RiskHigh:
		return "Nghe có vẻ bạn đang rất đau khổ. Cảm xúc của bạn là thật và quan trọng. Bạn có muốn kể thêm cho mình nghe chuyện gì đang xảy ra không?"
	case models.RiskModerate:
		return "Cảm ơn bạn đã tin tưởng chia sẻ. Giai đoạn này thật không dễ dàng với bạn. Mình luôn ở đây để lắng nghe."
	default:
		return "Mình luôn ở đây để lắng nghe bạn. Bạn cứ chia sẻ bất cứ điều gì đang nghĩ nhé."
	}
}
