package voice

import (
	"context"
	"errors"
	"testing"

	"expensebot/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTT struct {
	res service.Transcription
	err error
}

func (f fakeSTT) Transcribe(context.Context, string) (service.Transcription, error) {
	return f.res, f.err
}

type fakeCompleter struct {
	out string
	err error
	req service.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req service.ChatRequest) (string, error) {
	f.req = req
	return f.out, f.err
}

func TestAdapter_Process_Corrected(t *testing.T) {
	c := &fakeCompleter{out: ` "Am luat pâine de 20 lei." `}
	a := NewAdapter(fakeSTT{res: service.Transcription{Text: "am luat piine de 20 lei", Language: "ro", Duration: 3}}, c, "llama-3.1-8b-instant", zerolog.Nop())

	res, err := a.Process(context.Background(), "/tmp/x.ogg")
	require.NoError(t, err)
	assert.Equal(t, "am luat piine de 20 lei", res.RawText)
	assert.Equal(t, "Am luat pâine de 20 lei.", res.CorrectedText)
	assert.Equal(t, "Am luat pâine de 20 lei.", res.Text())
	assert.True(t, res.Corrected)
	assert.Equal(t, "llama-3.1-8b-instant", c.req.Model)
	assert.Equal(t, "am luat piine de 20 lei", c.req.Prompt)
}

func TestAdapter_Process_CorrectionFailureKeepsRaw(t *testing.T) {
	a := NewAdapter(fakeSTT{res: service.Transcription{Text: "20 lei taxi"}}, &fakeCompleter{err: errors.New("timeout")}, "", zerolog.Nop())

	res, err := a.Process(context.Background(), "/tmp/x.ogg")
	require.NoError(t, err)
	assert.Equal(t, "20 lei taxi", res.Text())
	assert.False(t, res.Corrected)

	a = NewAdapter(fakeSTT{res: service.Transcription{Text: "20 lei taxi"}}, &fakeCompleter{out: "   "}, "", zerolog.Nop())
	res, err = a.Process(context.Background(), "/tmp/x.ogg")
	require.NoError(t, err)
	assert.Equal(t, "20 lei taxi", res.Text())
}

func TestAdapter_Process_NoCorrector(t *testing.T) {
	a := NewAdapter(fakeSTT{res: service.Transcription{Text: "cafea 35"}}, nil, "", zerolog.Nop())
	res, err := a.Process(context.Background(), "/tmp/x.ogg")
	require.NoError(t, err)
	assert.Equal(t, "cafea 35", res.CorrectedText)
	assert.False(t, res.Corrected)
}

func TestAdapter_Process_TranscriptionErrorPropagates(t *testing.T) {
	a := NewAdapter(fakeSTT{err: service.ErrTranscription}, &fakeCompleter{out: "x"}, "", zerolog.Nop())
	_, err := a.Process(context.Background(), "/tmp/x.ogg")
	assert.ErrorIs(t, err, service.ErrTranscription)
}
