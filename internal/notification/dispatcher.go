// internal/notification/dispatcher.go
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	apperrors "resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/common/metrics"
	"resume-matcher/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	SNSEnabled   bool
	EmailEnabled bool
	FromEmail    string
}

// Dispatcher delivers match digests. Handles that are SNS topic ARNs get a
// topic publish; anything else is treated as an email address.
type Dispatcher struct {
	config    Config
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
}

func NewDispatcher(config Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		config:    config,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notification"}),
	}
}

func (d *Dispatcher) SendDigest(ctx context.Context, handle, applicantID string, matches []models.MatchSummary) error {
	if len(matches) == 0 {
		return nil
	}

	kind := models.KindOf(handle)
	notificationID := uuid.NewString()

	var err error
	switch kind {
	case models.ChannelKindTopic:
		err = d.publishTopic(ctx, handle, applicantID, matches)
	default:
		err = d.sendEmail(ctx, handle, applicantID, matches)
	}
	if err != nil {
		return apperrors.NewDispatchError(kind, err).
			WithMetadata("applicant_id", applicantID).
			WithMetadata("notification_id", notificationID)
	}

	metrics.DigestsSent.WithLabelValues(kind).Inc()
	d.logger.Info("digest sent", map[string]interface{}{
		"applicant_id":    applicantID,
		"notification_id": notificationID,
		"channel":         kind,
		"matches":         len(matches),
	})
	return nil
}

func (d *Dispatcher) publishTopic(ctx context.Context, topicArn, applicantID string, matches []models.MatchSummary) error {
	if !d.config.SNSEnabled || d.snsClient == nil {
		return fmt.Errorf("sns delivery is disabled")
	}

	short, err := json.Marshal(map[string]string{
		"user_id": applicantID,
		"message": ShortMessage(matches),
	})
	if err != nil {
		return err
	}
	message, err := json.Marshal(map[string]string{
		"default": string(short),
		"email":   "Subject: " + Subject(applicantID) + "\n\n" + EmailBody(matches),
	})
	if err != nil {
		return err
	}

	_, err = d.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn:         aws.String(topicArn),
		Message:          aws.String(string(message)),
		MessageStructure: aws.String("json"),
	})
	return err
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, applicantID string, matches []models.MatchSummary) error {
	if !d.config.EmailEnabled || d.sesClient == nil {
		return fmt.Errorf("email delivery is disabled")
	}

	_, err := d.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(Subject(applicantID))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(EmailBody(matches))},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	return err
}
