// internal/notification/dispatcher_test.go
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "resume-matcher/internal/common/errors"
	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
)

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() Config {
	return Config{SNSEnabled: true, EmailEnabled: true, FromEmail: "matches@example.com"}
}

func createTestMatches() []models.MatchSummary {
	return []models.MatchSummary{
		{JobID: "j1", Title: "Backend Engineer", Location: "Austin", SimilarityScore: 0.91234},
		{JobID: "j2", Title: "SRE", Location: "Remote", SimilarityScore: 0.75},
	}
}

// ==========================
// Digest Content Tests
// ==========================

func TestEmailBody(t *testing.T) {
	body := EmailBody(createTestMatches())
	expected := "Dear User,\n\n" +
		"The following job matches were found based on your resume:\n" +
		"- Backend Engineer (Austin) - Similarity: 0.9123\n" +
		"- SRE (Remote) - Similarity: 0.7500\n\n" +
		"Best,\nResume Matcher Team"
	assert.Equal(t, expected, body)
	assert.Equal(t, "New Job Matches for a1", Subject("a1"))
	assert.Equal(t, "New Job Matches for a1  Bcc: x", Subject("a1\r\nBcc: x"))
	assert.True(t, strings.HasPrefix(ShortMessage(createTestMatches()), "New job matches found:\n- Backend Engineer"))
}

// ==========================
// Dispatcher Tests
// ==========================

func TestDispatcher_SendDigest_Topic(t *testing.T) {
	var published *sns.PublishInput
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			published = params
			return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			t.Fatal("email must not be sent for a topic handle")
			return nil, nil
		},
	}
	d := NewDispatcher(createTestConfig(), sesMock, snsMock, logger.NewTestLogger(t))

	topic := "arn:aws:sns:us-east-1:123456789012:user-a1"
	require.NoError(t, d.SendDigest(context.Background(), topic, "a1", createTestMatches()))

	require.NotNil(t, published)
	assert.Equal(t, topic, aws.ToString(published.TopicArn))
	assert.Equal(t, "json", aws.ToString(published.MessageStructure))
	assert.Nil(t, published.Subject)

	var message map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(published.Message)), &message))
	assert.Contains(t, message["email"], "Subject: New Job Matches for a1")
	assert.Contains(t, message["email"], "- SRE (Remote) - Similarity: 0.7500")

	var short map[string]string
	require.NoError(t, json.Unmarshal([]byte(message["default"]), &short))
	assert.Equal(t, "a1", short["user_id"])
	assert.Contains(t, short["message"], "New job matches found:")
}

func TestDispatcher_SendDigest_Email(t *testing.T) {
	var sent *ses.SendEmailInput
	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sent = params
			return &ses.SendEmailOutput{MessageId: aws.String("email-1")}, nil
		},
	}
	d := NewDispatcher(createTestConfig(), sesMock, &MockSNSService{}, logger.NewTestLogger(t))

	require.NoError(t, d.SendDigest(context.Background(), "a1@example.com", "a1", createTestMatches()))

	require.NotNil(t, sent)
	assert.Equal(t, []string{"a1@example.com"}, sent.Destination.ToAddresses)
	assert.Equal(t, "matches@example.com", aws.ToString(sent.Source))
	assert.Equal(t, "New Job Matches for a1", aws.ToString(sent.Message.Subject.Data))
	assert.Equal(t, EmailBody(createTestMatches()), aws.ToString(sent.Message.Body.Text.Data))
}

func TestDispatcher_SendDigest_Failures(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		handle string
	}{
		{name: "topic publish error", config: createTestConfig(), handle: "arn:aws:sns:us-east-1:1:t"},
		{name: "email send error", config: createTestConfig(), handle: "a1@example.com"},
		{name: "sns disabled", config: Config{EmailEnabled: true}, handle: "arn:aws:sns:us-east-1:1:t"},
		{name: "email disabled", config: Config{SNSEnabled: true}, handle: "a1@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sesMock := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					return nil, errors.New("throttled")
				},
			}
			snsMock := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					return nil, errors.New("not authorized")
				},
			}
			d := NewDispatcher(tt.config, sesMock, snsMock, logger.NewTestLogger(t))

			err := d.SendDigest(context.Background(), tt.handle, "a1", createTestMatches())
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDispatchError))
		})
	}
}

func TestDispatcher_SendDigest_NoMatches(t *testing.T) {
	d := NewDispatcher(createTestConfig(), &MockSESService{}, &MockSNSService{}, logger.NewTestLogger(t))
	assert.NoError(t, d.SendDigest(context.Background(), "a1@example.com", "a1", nil))
}
