package usecase

import (
	"github.com/musubi-dev/musubi/pkg/domain/interfaces"
	"github.com/musubi-dev/musubi/pkg/service/slack"
	"github.com/musubi-dev/musubi/pkg/utils/async"
)

type UseCases struct {
	repo           interfaces.Repository
	executor       interfaces.ActionExecutor
	publisher      interfaces.EventPublisher
	slackService   slack.Service
	slackChannelID string
	background     *async.Group

	Action *ActionUseCase
}

type Option func(*UseCases)

func WithExecutor(executor interfaces.ActionExecutor) Option {
	return func(uc *UseCases) {
		uc.executor = executor
	}
}

// WithPublisher enables actionUpdated events for actions that carry a project ID
func WithPublisher(publisher interfaces.EventPublisher) Option {
	return func(uc *UseCases) {
		uc.publisher = publisher
	}
}

// WithSlack enables approval messages posted to channelID
func WithSlack(svc slack.Service, channelID string) Option {
	return func(uc *UseCases) {
		uc.slackService = svc
		uc.slackChannelID = channelID
	}
}

// WithBackground sets the group used for work started from Slack interactions
func WithBackground(group *async.Group) Option {
	return func(uc *UseCases) {
		uc.background = group
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo: repo,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.background == nil {
		uc.background = &async.Group{}
	}

	uc.Action = newActionUseCase(uc)

	return uc
}
