package push

import (
	"context"
	"math/rand"
	"time"

	"github.com/nkansahrexford/saferide-server/cmd/utils"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sirupsen/logrus"
)

// BatchSize is the gateway's documented ceiling on messages per request.
const BatchSize = 100

// maxRetries is the number of additional attempts after the first one.
const maxRetries = 3

// Logical priorities assigned by notification templates. These are
// wider than the gateway's own priority levels; mapping happens here.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Sound selectors understood by the templates.
const (
	SoundDefault  = "default"
	SoundCritical = "critical"
	SoundNone     = "none"
)

// Ticket statuses. These mirror the gateway's per-message statuses.
const (
	TicketOK    = "ok"
	TicketError = "error"
)

// Payload is one rendered notification, ready to be fanned out to any
// number of device tokens.
type Payload struct {
	Title    string
	Body     string
	Data     map[string]string
	Priority string
	Sound    string
}

// Ticket is the per-token delivery outcome. Details carries the
// gateway's error code (e.g. DeviceNotRegistered) when Status is error.
type Ticket struct {
	Token   string
	Status  string
	ID      string
	Message string
	Details string
	Retries int
}

func (t Ticket) OK() bool {
	return t.Status == TicketOK
}

// Config controls gateway access. The zero value targets the real Expo
// host with a 10s per-attempt deadline and 1s base backoff.
type Config struct {
	AccessToken  string
	GatewayHost  string        // override of the gateway host, used by tests
	BatchTimeout time.Duration // deadline per gateway attempt
	RetryBackoff time.Duration // base backoff, doubled per retry
}

// Client sends rendered payloads to the Expo push gateway in batches.
// It is safe for concurrent use; construction is cheap and repeated
// construction with the same config shares no process-wide state.
type Client struct {
	expo         *expo.PushClient
	batchTimeout time.Duration
	retryBackoff time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Client{
		expo: expo.NewPushClient(&expo.ClientConfig{
			Host:        cfg.GatewayHost,
			AccessToken: cfg.AccessToken,
		}),
		batchTimeout: cfg.BatchTimeout,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Send fans payload out to every token and returns one ticket per
// token, positionally aligned with the input. Tokens are sent in
// batches of BatchSize; each batch retries independently, and a batch
// that exhausts its retries yields a uniform error ticket for every
// token in it carrying the last observed error.
func (c *Client) Send(ctx context.Context, tokens []string, payload Payload) []Ticket {
	tickets := make([]Ticket, len(tokens))
	for start := 0; start < len(tokens); start += BatchSize {
		end := min(start+BatchSize, len(tokens))
		c.sendBatch(ctx, tokens[start:end], payload, tickets[start:end])
	}
	return tickets
}

func (c *Client) sendBatch(ctx context.Context, tokens []string, payload Payload, tickets []Ticket) {
	indexes := make([]int, 0, len(tokens))
	messages := make([]expo.PushMessage, 0, len(tokens))

	for i, token := range tokens {
		tickets[i] = Ticket{Token: token}
		parsed, err := expo.NewExponentPushToken(token)
		if err != nil {
			tickets[i].Status = TicketError
			tickets[i].Message = "invalid push token format"
			continue
		}
		indexes = append(indexes, i)
		messages = append(messages, c.message(parsed, payload))
	}

	if len(messages) == 0 {
		return
	}

	responses, retries, err := c.publishWithRetry(ctx, messages)
	if err != nil {
		for _, i := range indexes {
			tickets[i].Status = TicketError
			tickets[i].Message = err.Error()
			tickets[i].Retries = retries
		}
		return
	}

	// The gateway reply is positionally aligned with the request batch;
	// indexes maps it back onto the caller's token order.
	for n, i := range indexes {
		resp := responses[n]
		tickets[i].ID = resp.ID
		tickets[i].Status = resp.Status
		tickets[i].Message = resp.Message
		tickets[i].Details = resp.Details["error"]
		tickets[i].Retries = retries
	}
}

// message builds one outbound gateway message for a single token.
func (c *Client) message(token expo.ExponentPushToken, payload Payload) expo.PushMessage {
	msg := expo.PushMessage{
		To:        []expo.ExponentPushToken{token},
		Title:     payload.Title,
		Body:      payload.Body,
		Data:      payload.Data,
		Priority:  gatewayPriority(payload.Priority),
		ChannelID: channelFor(payload.Priority),
	}
	switch payload.Sound {
	case SoundNone:
		// leave unset
	case SoundCritical:
		msg.Sound = "critical"
	default:
		msg.Sound = "default"
	}
	return msg
}

func gatewayPriority(priority string) string {
	switch priority {
	case PriorityCritical, PriorityHigh:
		return expo.HighPriority
	case PriorityNormal:
		return expo.NormalPriority
	default:
		return expo.DefaultPriority
	}
}

// channelFor picks the Android channel class for a logical priority.
// Channels themselves are declared by the app at install time; the
// server only references them by id.
func channelFor(priority string) string {
	switch priority {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	default:
		return "default"
	}
}

func (c *Client) publishWithRetry(ctx context.Context, messages []expo.PushMessage) ([]expo.PushResponse, int, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff)/4 + 1))
			utils.Logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"batch":   len(messages),
			}).Warnf("Push batch failed, retrying: %v", lastErr)
			time.Sleep(backoff)
		}

		responses, err := c.publish(ctx, messages)
		if err == nil {
			return responses, attempt, nil
		}
		lastErr = err
	}
	return nil, maxRetries, lastErr
}

// publish runs one gateway attempt under the per-batch deadline. The
// SDK call itself is not cancellable, so an expired deadline abandons
// the attempt rather than aborting the HTTP request.
func (c *Client) publish(ctx context.Context, messages []expo.PushMessage) ([]expo.PushResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	type result struct {
		responses []expo.PushResponse
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		responses, err := c.expo.PublishMultiple(messages)
		ch <- result{responses, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.responses, res.err
	}
}
