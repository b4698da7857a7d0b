// Package voice 语音消息转文字，附带可选的语法纠错
package voice

import (
	"context"
	"strings"

	"expensebot/service"

	"github.com/rs/zerolog"
)

// Transcriber 语音识别服务
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (service.Transcription, error)
}

const correctionPrompt = `Ești un corector de text pentru transcrieri vocale în limba română.
Corectează greșelile de gramatică, diacriticele și punctuația.
Nu modifica sumele, valutele, datele sau numele de magazine.
Nu adăuga explicații. Răspunde doar cu textul corectat.`

// Result 语音处理结果
type Result struct {
	RawText       string
	CorrectedText string
	Language      string
	Duration      float64
	Corrected     bool
}

// Text 返回进入识别流程的文本
func (r Result) Text() string {
	if r.CorrectedText != "" {
		return r.CorrectedText
	}
	return r.RawText
}

// Adapter 语音处理适配器
type Adapter struct {
	stt       Transcriber
	corrector service.Completer
	model     string
	log       zerolog.Logger
}

// NewAdapter 创建适配器，corrector 为空时跳过纠错
func NewAdapter(stt Transcriber, corrector service.Completer, correctionModel string, log zerolog.Logger) *Adapter {
	return &Adapter{stt: stt, corrector: corrector, model: correctionModel, log: log}
}

// Process 识别音频文件并纠错；识别失败直接返回错误，纠错失败使用原文
// 临时文件由调用方负责删除
func (a *Adapter) Process(ctx context.Context, audioPath string) (Result, error) {
	tr, err := a.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		RawText:  tr.Text,
		Language: tr.Language,
		Duration: tr.Duration,
	}
	res.CorrectedText = a.correct(ctx, tr.Text)
	res.Corrected = res.CorrectedText != res.RawText
	return res, nil
}

func (a *Adapter) correct(ctx context.Context, raw string) string {
	if a.corrector == nil {
		return raw
	}
	out, err := a.corrector.Complete(ctx, service.ChatRequest{
		Model:       a.model,
		System:      correctionPrompt,
		Prompt:      raw,
		Temperature: 0,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("语音纠错失败，使用原始识别结果")
		return raw
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return raw
	}
	return out
}
