package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-notify-core/internal/config"
	"github.com/go-notify-core/internal/domain"
)

// PushSender delivers OS-level notifications through a mobile push provider.
type PushSender interface {
	// RegisterToken exchanges a device push token for a delivery endpoint.
	RegisterToken(ctx context.Context, token string) (string, error)
	// Push delivers the notification to one endpoint. Fire-and-forget from
	// the pipeline's point of view: callers log failures, never abort on them.
	Push(ctx context.Context, endpointARN, platform string, n *domain.Notification) error
}

type sender struct {
	client         *sns.Client
	platformAppARN string
}

// NewSender creates an SNS-backed push sender. Returns an error when no
// platform application is configured — callers treat that as "push
// unavailable" and continue without OS alerts.
func NewSender(cfg *config.Config) (PushSender, error) {
	if cfg.SNSPlatformAppARN == "" {
		return nil, fmt.Errorf("no SNS platform application configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &sender{
		client:         sns.NewFromConfig(awsCfg),
		platformAppARN: cfg.SNSPlatformAppARN,
	}, nil
}

func (s *sender) RegisterToken(ctx context.Context, token string) (string, error) {
	out, err := s.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(s.platformAppARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("create platform endpoint: %w", err)
	}
	return aws.ToString(out.EndpointArn), nil
}

func (s *sender) Push(ctx context.Context, endpointARN, platform string, n *domain.Notification) error {
	msg, err := buildMessage(platform, n)
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpointARN),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	return err
}

// buildMessage renders the platform-specific push payload. The semantic
// content (title, message, data) is identical across platforms; only the
// presentation fields differ: priority/channel/vibration on Android,
// subtitle/interruption-level on iOS.
func buildMessage(platform string, n *domain.Notification) (string, error) {
	data := map[string]interface{}{
		"notification_id": n.NotificationID,
		"type":            n.Type,
	}
	if n.Action != nil {
		data["action"] = n.Action
	}
	if n.ImageURL != nil {
		data["image_url"] = *n.ImageURL
	}

	payload := map[string]string{
		"default": n.Title + ": " + n.Message,
	}

	switch platform {
	case domain.PlatformAndroid:
		gcm, err := json.Marshal(map[string]interface{}{
			"notification": map[string]interface{}{
				"title": n.Title,
				"body":  n.Message,
			},
			"priority":           "high",
			"android_channel_id": "storefront-default",
			"vibrate":            true,
			"data":               data,
		})
		if err != nil {
			return "", err
		}
		payload["GCM"] = string(gcm)
	case domain.PlatformIOS:
		apns, err := json.Marshal(map[string]interface{}{
			"aps": map[string]interface{}{
				"alert": map[string]interface{}{
					"title":    n.Title,
					"subtitle": n.Type,
					"body":     n.Message,
				},
				"interruption-level": "active",
				"sound":              "default",
			},
			"data": data,
		})
		if err != nil {
			return "", err
		}
		payload["APNS"] = string(apns)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal push payload: %w", err)
	}
	return string(out), nil
}
