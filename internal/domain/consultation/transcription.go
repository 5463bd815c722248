package consultation

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/jobs"
	"github.com/clinic/clinic/internal/platform/whisper"
)

// Transcriber converts a recording to text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio []byte) (*whisper.Result, error)
}

func transcriptionError(err error) string {
	return "Erro ao transcrever áudio: " + err.Error()
}

func (s *Service) startTranscription(a *Audio) {
	jobs.Start(s.runner, jobs.KindTranscription, a.ID.String(), s.audioSink(), s.transcribeCall(a.FileURL, a.FileName), transcriptionError)
}

func (s *Service) audioSink() jobs.Sink[Transcript] {
	return jobs.SinkFuncs[Transcript]{
		CompleteFn: func(ctx context.Context, id string, t Transcript) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.audios.Complete(ctx, uid, t)
		},
		FailFn: func(ctx context.Context, id string, message string) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.audios.Fail(ctx, uid, message)
		},
	}
}

// transcribeCall reads the stored recording and sends it to the
// transcription service.
func (s *Service) transcribeCall(fileURL, fileName string) jobs.Call[Transcript] {
	return func(ctx context.Context) (Transcript, error) {
		data, err := s.files.ReadAll(ctx, filestore.PathFromURL(fileURL))
		if err != nil {
			return Transcript{}, fmt.Errorf("read audio file: %w", err)
		}
		res, err := s.transcriber.Transcribe(ctx, fileName, data)
		if err != nil {
			return Transcript{}, err
		}
		return toTranscript(res), nil
	}
}

func toTranscript(res *whisper.Result) Transcript {
	t := Transcript{Text: res.Text, Language: res.Language}
	if res.Duration > 0 {
		d := int(math.Round(res.Duration))
		t.Duration = &d
	}
	for _, seg := range res.Segments {
		t.Segments = append(t.Segments, Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return t
}
