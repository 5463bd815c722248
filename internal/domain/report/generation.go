package report

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/anthropic"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// Messenger sends one request to the text model.
type Messenger interface {
	CreateMessage(ctx context.Context, req anthropic.Request) (*anthropic.Response, error)
}

const (
	generationMaxTokens   = 4096
	generationTemperature = 0.3
)

func generationError(err error) string {
	return "Erro ao gerar relatório: " + err.Error()
}

func (s *Service) startGeneration(id uuid.UUID, prompt string) {
	jobs.Start(s.runner, jobs.KindReport, id.String(), s.reportSink(), s.generateCall(prompt), generationError)
}

func (s *Service) runGeneration(id uuid.UUID, prompt string) error {
	return jobs.Run(s.runner, jobs.KindReport, id.String(), s.reportSink(), s.generateCall(prompt), generationError)
}

func (s *Service) reportSink() jobs.Sink[Generated] {
	return jobs.SinkFuncs[Generated]{
		CompleteFn: func(ctx context.Context, id string, g Generated) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.reports.Complete(ctx, uid, g)
		},
		FailFn: func(ctx context.Context, id string, message string) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.reports.Fail(ctx, uid, message)
		},
	}
}

func (s *Service) generateCall(prompt string) jobs.Call[Generated] {
	return func(ctx context.Context) (Generated, error) {
		resp, err := s.messenger.CreateMessage(ctx, anthropic.Request{
			Model:       s.model,
			MaxTokens:   generationMaxTokens,
			Temperature: generationTemperature,
			Messages:    []anthropic.Message{anthropic.UserMessage(anthropic.TextBlock(prompt))},
		})
		if err != nil {
			return Generated{}, err
		}
		text, err := resp.Text()
		if err != nil {
			return Generated{}, err
		}
		return Parse(text, s.model), nil
	}
}
