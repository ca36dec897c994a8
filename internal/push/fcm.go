package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const (
	defaultFCMEndpoint = "https://fcm.googleapis.com"
	messagingScope     = "https://www.googleapis.com/auth/firebase.messaging"
)

// ErrUnavailable is returned when the breaker is open and nothing was sent.
var ErrUnavailable = errors.New("fcm: transport unavailable")

// FCMConfig holds FCM HTTP v1 settings
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string // service account JSON; empty uses application default credentials
	Endpoint        string
	Timeout         time.Duration
	RatePerSecond   float64 // 0 = unlimited
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// FCMClient sends through the Firebase Cloud Messaging HTTP v1 API, one
// request per token.
type FCMClient struct {
	http    *resty.Client
	project string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*fcmResponse]
	logger  *zap.Logger
}

// NewFCM builds an FCM client authenticated with Google service account credentials
func NewFCM(ctx context.Context, cfg FCMConfig, logger *zap.Logger) (*FCMClient, error) {
	var creds *google.Credentials
	var err error
	if cfg.CredentialsFile != "" {
		data, readErr := os.ReadFile(cfg.CredentialsFile)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read FCM credentials: %w", readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, messagingScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, messagingScope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load FCM credentials: %w", err)
	}

	return NewFCMWithClient(oauth2.NewClient(ctx, creds.TokenSource), cfg, logger), nil
}

// NewFCMWithClient uses the given HTTP client, which must add authorization itself
func NewFCMWithClient(httpClient *http.Client, cfg FCMConfig, logger *zap.Logger) *FCMClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultFCMEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[*fcmResponse](gobreaker.Settings{
		Name:        "fcm",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var rejected *tokenError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Push breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &FCMClient{
		http:    client,
		project: cfg.ProjectID,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// SendMulticast sends msg to every token. It fails as a whole only when the
// breaker is open before the first send.
func (c *FCMClient) SendMulticast(ctx context.Context, msg *Message) (*BatchResponse, error) {
	if c.breaker.State() == gobreaker.StateOpen {
		return nil, ErrUnavailable
	}

	resp := &BatchResponse{Responses: make([]SendResult, 0, len(msg.Tokens))}
	for _, tok := range msg.Tokens {
		if err := c.limiter.Wait(ctx); err != nil {
			resp.add(SendResult{Token: tok, Err: err})
			continue
		}

		out, err := c.breaker.Execute(func() (*fcmResponse, error) {
			return c.send(ctx, tok, msg)
		})
		if err != nil {
			c.logger.Debug("Push send failed", zap.String("token", redact(tok)), zap.Error(err))
			resp.add(SendResult{Token: tok, Err: err})
			continue
		}
		resp.add(SendResult{Token: tok, MessageID: out.Name})
	}

	return resp, nil
}

// tokenError is a per-token rejection (bad or unregistered token). It does not
// count against the breaker.
type tokenError struct {
	status string
	msg    string
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("fcm: %s: %s", e.status, e.msg)
}

func (c *FCMClient) send(ctx context.Context, token string, msg *Message) (*fcmResponse, error) {
	var out fcmResponse
	var apiErr fcmErrorBody

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(fcmRequest{Message: fcmMessage{
			Token:        token,
			Notification: &fcmNotification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		}}).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1/projects/%s/messages:send", c.project))
	if err != nil {
		return nil, fmt.Errorf("fcm: request failed: %w", err)
	}

	if res.IsError() {
		status := apiErr.Error.Status
		if status == "" {
			status = res.Status()
		}
		code := res.StatusCode()
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return nil, &tokenError{status: status, msg: apiErr.Error.Message}
		}
		return nil, fmt.Errorf("fcm: %s: %s", status, apiErr.Error.Message)
	}

	return &out, nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
