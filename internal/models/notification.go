// internal/models/notification.go
package models

import "strings"

// NotificationChannel maps an applicant to where digests are delivered.
// Handle is either an SNS topic ARN or an email address.
type NotificationChannel struct {
	ApplicantID string `json:"applicant_id"`
	Handle      string `json:"channel_handle"`
}

// Channel kinds derived from the handle.
const (
	ChannelKindTopic = "sns_topic"
	ChannelKindEmail = "email"
)

// KindOf classifies a channel handle.
func KindOf(handle string) string {
	if strings.HasPrefix(handle, "arn:aws:sns:") {
		return ChannelKindTopic
	}
	return ChannelKindEmail
}
