// Package github provides a webhook receiver for GitHub events.
package github

import (
	"net/http"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/provider"
)

const loggerName = "github-event-provider"

const providerName = "github"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to an Events and forwards it to an event
// channel.
// Only comments that are created on pull requests are forwarded, all other
// events are acknowledged and dropped.
type Provider struct {
	logging       *zap.Logger
	webhookSecret []byte
	c             chan<- *provider.Event
}

type option func(*Provider)

func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChan chan<- *provider.Event, opts ...option) *Provider {
	p := Provider{
		c: eventChan,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logging == nil {
		p.logging = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logger := p.logging.With(
		logfields.EventProvider(providerName),
		logfields.DeliveryID(deliveryID),
		zap.String("github.webhook_type", hookType),
	)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Debug(
		"received http request",
		logfields.Event("github_event_received"),
		zap.ByteString("http_body", payload),
	)

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev := provider.Event{
		JSON:       payload,
		Provider:   providerName,
		DeliveryID: deliveryID,
		EventType:  hookType,
	}

	switch event := event.(type) {
	case *github.IssueCommentEvent:
		if event.GetAction() != "created" {
			logger.Debug(
				"ignoring issue comment event, action is not created",
				logfields.Event("github_event_ignored"),
				zap.String("github.action", event.GetAction()),
			)
			return
		}

		if !event.GetIssue().IsPullRequest() {
			logger.Debug(
				"ignoring issue comment event, comment is not on a pull request",
				logfields.Event("github_event_ignored"),
			)
			return
		}

		ev.Repository = toRepository(event.GetRepo())
		ev.PullRequestNr = event.GetIssue().GetNumber()
		ev.CommentBody = event.GetComment().GetBody()
		ev.CommentAuthor = event.GetComment().GetUser().GetLogin()

	default:
		logger.Debug(
			"ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)
		return
	}

	logger = logger.With(ev.LogFields()...)

	select {
	case p.c <- &ev:
		logger.Debug("event forwarded to channel",
			logfields.Event("github_event_forwarded"),
		)

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("github_forwarding_event_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
		return
	}
}

func toRepository(repo *github.Repository) *provider.Repository {
	if repo == nil {
		return nil
	}

	return &provider.Repository{
		ID:            repo.GetID(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Owner:         repo.GetOwner().GetLogin(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
}
