package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
)

const (
	providerGoogle = "google"

	googleLanguage     = "en-GB"
	googleCallTimeout  = 10 * time.Second
	googleAudioBacklog = 256
)

// Google transcribes with Cloud Speech-to-Text's synchronous Recognize
// call. It segments the stream itself: frames whose energy crosses
// VoiceLevel open a segment, the growing segment is recognized every
// InterimEvery for a Partial, and SilenceHold of quiet closes the segment
// and recognizes it one last time as the final utterance.
//
// The credential is a service-account JSON file path. An empty path falls
// back to application default credentials. The keep-alive refreshes the
// OAuth2 token so the first request after a quiet spell does not pay for it.
type Google struct {
	*base

	svc   *speech.Service
	ts    oauth2.TokenSource
	audio chan []byte
}

// NewGoogle creates a Google provider.
func NewGoogle(opts ...Option) *Google {
	return &Google{base: newBase(providerGoogle, opts)}
}

// Connect authenticates and starts the segmenter.
func (g *Google) Connect(ctx context.Context, credential, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return ErrAlreadyConnected
	}

	svc, ts, err := g.newService(ctx, credential)
	if err != nil {
		g.logger.Warn("connect failed", "session_id", sessionID, "error", err)
		return err
	}
	g.svc = svc
	g.ts = ts
	g.audio = make(chan []byte, googleAudioBacklog)

	runCtx := g.begin(sessionID)
	g.connected.Store(true)

	g.wg.Add(2)
	go g.segment(runCtx, g.audio)
	go func() {
		defer g.wg.Done()
		if ts == nil {
			return
		}
		keepAlive(runCtx, g.cfg.KeepAlive, g.logger, func() error {
			_, err := ts.Token()
			return err
		})
	}()

	g.logger.Info("connected", "session_id", sessionID)
	return nil
}

func (g *Google) newService(ctx context.Context, credential string) (*speech.Service, oauth2.TokenSource, error) {
	if g.cfg.BaseURL != "" {
		endpoint := strings.TrimSuffix(g.cfg.BaseURL, "/") + "/"
		svc, err := speech.NewService(ctx, option.WithEndpoint(endpoint), option.WithoutAuthentication())
		if err != nil {
			return nil, nil, NewConnectionError(providerGoogle, "create client", err, false)
		}
		return svc, nil, nil
	}

	var (
		creds *google.Credentials
		err   error
	)
	if credential != "" {
		data, readErr := os.ReadFile(credential)
		if readErr != nil {
			return nil, nil, NewConnectionError(providerGoogle, "read credentials", readErr, false)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, speech.CloudPlatformScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, speech.CloudPlatformScope)
	}
	if err != nil {
		return nil, nil, NewConnectionError(providerGoogle, "load credentials", err, false)
	}

	ts := oauth2.ReuseTokenSource(nil, creds.TokenSource)
	if _, err := ts.Token(); err != nil {
		return nil, nil, NewConnectionError(providerGoogle, "fetch token", err, true)
	}

	svc, err := speech.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, nil, NewConnectionError(providerGoogle, "create client", err, false)
	}
	return svc, ts, nil
}

// ProcessAudio queues a frame for the segmenter. Frames are dropped while
// disconnected or when the segmenter has fallen behind.
func (g *Google) ProcessAudio(frame []byte) error {
	if len(frame) == 0 || !g.connected.Load() {
		g.drop()
		return nil
	}

	select {
	case g.audio <- frame:
		g.framesSent.Add(1)
	default:
		g.drop()
	}
	return nil
}

// Disconnect stops the segmenter. It is idempotent.
func (g *Google) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return nil
	}
	g.end()
	g.svc = nil
	g.ts = nil

	g.logger.Info("disconnected", "session_id", g.sessionID, "frames", g.framesSent.Load())
	return nil
}

func (g *Google) segment(ctx context.Context, audio <-chan []byte) {
	defer g.wg.Done()

	var (
		buf          []byte
		voiced       bool
		silence      time.Duration
		sinceInterim time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-audio:
			d := frameDuration(len(frame))
			loud := audioio.ULawEnergy(frame) >= g.cfg.VoiceLevel

			if !voiced {
				if !loud {
					continue
				}
				voiced = true
				buf = buf[:0]
				silence, sinceInterim = 0, 0
			}

			buf = append(buf, frame...)
			sinceInterim += d
			if loud {
				silence = 0
			} else {
				silence += d
			}

			switch {
			case silence >= g.cfg.SilenceHold:
				g.acc.Add(g.recognize(ctx, buf), true)
				g.flush()
				voiced = false
			case sinceInterim >= g.cfg.InterimEvery:
				sinceInterim = 0
				g.partial(g.recognize(ctx, buf))
			}
		}
	}
}

func (g *Google) recognize(ctx context.Context, audio []byte) string {
	lang := g.cfg.Language
	if lang == "" {
		lang = googleLanguage
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:                   "MULAW",
			SampleRateHertz:            audioio.SampleRate,
			LanguageCode:               lang,
			Model:                      g.cfg.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, googleCallTimeout)
	defer cancel()

	resp, err := g.svc.Speech.Recognize(req).Context(callCtx).Do()
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("recognize failed", "session_id", g.sessionID, "error", fmt.Errorf("stt [%s]: %w", providerGoogle, err))
		}
		return ""
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func frameDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / audioio.SampleRate
}

var _ Provider = (*Google)(nil)
