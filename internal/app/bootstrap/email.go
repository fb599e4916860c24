package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/physioflow/internal/config"
	"github.com/wolfman30/physioflow/internal/notify"
	"github.com/wolfman30/physioflow/pkg/logging"
)

// BuildEmailSender returns the configured plan delivery channel and the name
// of the provider actually in use. Missing credentials fall back to the stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("SENDGRID_API_KEY missing; using stub email sender")
	case "ses":
		if cfg.EmailFromAddress == "" {
			logger.Warn("EMAIL_FROM_ADDRESS missing; using stub email sender")
			break
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger), "ses"
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub email sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}
