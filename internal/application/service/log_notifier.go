package service

import (
	"context"

	"github.com/aimstors/sentinel/internal/domain/models"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// logNotifier delivers security alerts to the log stream. Paging and email
// delivery belong to the operations stack consuming these records.
type logNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates the default Notifier.
func NewLogNotifier(log logger.Logger) domainService.Notifier {
	return &logNotifier{log: log.WithComponent("Notifier")}
}

func (n *logNotifier) SendSecurityAlert(ctx context.Context, alert models.SecurityAlert) error {
	fields := []logger.Field{
		logger.String("alert_type", alert.Type),
		logger.String("severity", alert.Severity),
		logger.Any("metadata", alert.Metadata),
	}
	if alert.Severity == string(constants.RiskSeverityCritical) {
		n.log.Error(ctx, "security alert: "+alert.Message, nil, fields...)
	} else {
		n.log.Warn(ctx, "security alert: "+alert.Message, fields...)
	}
	return nil
}
