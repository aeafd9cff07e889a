package tts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-callbridge/pkg/audioio"
	"github.com/teslashibe/go-callbridge/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Convert before Connect fails", func(t *testing.T) {
		_, err := mock.Convert(ctx, "Hello")
		if !errors.Is(err, tts.ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
		if !tts.IsSynthesisError(err) {
			t.Errorf("expected SynthesisError, got %T", err)
		}
	})

	t.Run("Convert returns mu-law audio", func(t *testing.T) {
		if err := mock.Connect(ctx, "key", "CA1"); err != nil {
			t.Fatalf("connect: %v", err)
		}
		result, err := mock.Convert(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) != 11*20*8 {
			t.Errorf("expected %d bytes, got %d", 11*20*8, len(result.Audio))
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Format != tts.TelephonyFormat {
			t.Errorf("expected telephony format, got %+v", result.Format)
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms, got %v", result.Duration)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Convert") != 2 {
			t.Errorf("expected 2 Convert calls, got %d", mock.CallCount("Convert"))
		}
		if mock.CallCount("Connect") != 1 {
			t.Errorf("expected 1 Connect call, got %d", mock.CallCount("Connect"))
		}
		if last := mock.LastCall(); last == nil || last.Text != "Hello world" {
			t.Errorf("unexpected last call: %+v", last)
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()
	_ = mock.Connect(ctx, "", "CA1")

	_, err := mock.Convert(ctx, "Hello")
	if !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	var se *tts.SynthesisError
	if !errors.As(err, &se) || se.Provider != "mock" {
		t.Errorf("expected mock SynthesisError, got %v", err)
	}
}

func TestMockConnectFailure(t *testing.T) {
	mock := tts.NewMock()
	mock.ConnectFunc = func(ctx context.Context, credential, sessionID string) error {
		return &tts.ConnectionError{Provider: "mock", Reason: "refused"}
	}

	err := mock.Connect(context.Background(), "key", "CA1")
	if !tts.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if _, err := mock.Convert(context.Background(), "Hello"); !errors.Is(err, tts.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after failed connect, got %v", err)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)
	_ = mock.Connect(context.Background(), "", "CA1")

	t.Run("Convert has latency", func(t *testing.T) {
		start := time.Now()
		_, err := mock.Convert(context.Background(), "Hello")
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed < 50*time.Millisecond {
			t.Errorf("expected at least 50ms latency, got %v", elapsed)
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := mock.Convert(ctx, "Hello")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	})
}

func TestDefaultVoiceSettings(t *testing.T) {
	settings := tts.DefaultVoiceSettings()

	if settings.Stability != 0.5 {
		t.Errorf("expected stability 0.5, got %f", settings.Stability)
	}
	if settings.SimilarityBoost != 0.75 {
		t.Errorf("expected similarity 0.75, got %f", settings.SimilarityBoost)
	}
	if !settings.SpeakerBoost {
		t.Error("expected speaker boost enabled")
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithVoice("test-voice"),
		tts.WithModel("test-model"),
		tts.WithRegion("eu-west-1"),
		tts.WithTimeout(5*time.Second),
		tts.WithRetry(5, 200*time.Millisecond),
	)

	if cfg.VoiceID != "test-voice" {
		t.Errorf("expected voice test-voice, got %s", cfg.VoiceID)
	}
	if cfg.ModelID != "test-model" {
		t.Errorf("expected model test-model, got %s", cfg.ModelID)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("expected region eu-west-1, got %s", cfg.Region)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 5 || cfg.RetryDelay != 200*time.Millisecond {
		t.Errorf("unexpected retry config: %d %v", cfg.MaxRetries, cfg.RetryDelay)
	}
}

func TestAPIError(t *testing.T) {
	t.Run("IsRateLimited", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 429, Message: "rate limited"}
		if !err.IsRateLimited() {
			t.Error("expected IsRateLimited true")
		}
		if err.IsUnauthorized() {
			t.Error("expected IsUnauthorized false")
		}
	})

	t.Run("IsUnauthorized", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 401, Message: "unauthorized"}
		if !err.IsUnauthorized() {
			t.Error("expected IsUnauthorized true")
		}
		if err.IsRetryable() {
			t.Error("expected 401 not retryable")
		}
	})

	t.Run("IsServerError", func(t *testing.T) {
		for _, code := range []int{500, 502, 503, 504} {
			err := &tts.APIError{StatusCode: code}
			if !err.IsServerError() {
				t.Errorf("expected IsServerError true for %d", code)
			}
			if !err.IsRetryable() {
				t.Errorf("expected IsRetryable true for %d", code)
			}
		}
	})

	t.Run("Error message format", func(t *testing.T) {
		err := &tts.APIError{
			StatusCode: 400,
			Message:    "bad request",
			Code:       "invalid_input",
			Provider:   "elevenlabs",
		}
		msg := err.Error()
		if msg != "tts [elevenlabs]: API error 400 (invalid_input): bad request" {
			t.Errorf("unexpected error message: %s", msg)
		}
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("NewChain requires providers", func(t *testing.T) {
		_, err := tts.NewChain()
		if err != tts.ErrProviderUnavailable {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("First provider succeeds", func(t *testing.T) {
		mock1 := tts.NewMock()
		mock2 := tts.NewMock()

		chain, err := tts.NewChain(mock1, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := chain.Connect(ctx, "key", "CA1"); err != nil {
			t.Fatalf("connect: %v", err)
		}

		if _, err := chain.Convert(ctx, "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if mock1.CallCount("Convert") != 1 {
			t.Error("expected first provider to be called")
		}
		if mock2.CallCount("Convert") != 0 {
			t.Error("expected second provider not to be called")
		}
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		failMock := tts.WithError(errors.New("provider 1 failed"))
		successMock := tts.NewMock()

		chain, _ := tts.NewChain(failMock, successMock)
		_ = chain.Connect(ctx, "key", "CA1")

		result, err := chain.Convert(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Error("expected result from fallback provider")
		}
	})

	t.Run("All providers fail", func(t *testing.T) {
		chain, _ := tts.NewChain(
			tts.WithError(errors.New("fail 1")),
			tts.WithError(errors.New("fail 2")),
		)
		_ = chain.Connect(ctx, "key", "CA1")

		_, err := chain.Convert(ctx, "Hello")
		if !tts.IsSynthesisError(err) {
			t.Fatalf("expected SynthesisError, got %v", err)
		}
		var ce *tts.ChainError
		if !errors.As(err, &ce) || len(ce.Errors) != 2 {
			t.Errorf("expected ChainError with 2 errors, got %v", err)
		}
	})

	t.Run("Connect succeeds if any member connects", func(t *testing.T) {
		refusing := tts.NewMock()
		refusing.ConnectFunc = func(ctx context.Context, credential, sessionID string) error {
			return errors.New("refused")
		}
		chain, _ := tts.NewChain(refusing, tts.NewMock())

		if err := chain.Connect(ctx, "key", "CA1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := chain.Convert(ctx, "Hello"); err != nil {
			t.Fatalf("expected fallback to connected member, got %v", err)
		}
	})

	t.Run("Connect fails when no member connects", func(t *testing.T) {
		refusing := tts.NewMock()
		refusing.ConnectFunc = func(ctx context.Context, credential, sessionID string) error {
			return errors.New("refused")
		}
		chain, _ := tts.NewChain(refusing)

		if err := chain.Connect(ctx, "key", "CA1"); !tts.IsConnectionError(err) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
	})
}

func TestFactory(t *testing.T) {
	tests := []struct {
		kind    string
		name    string
		wantErr bool
	}{
		{kind: "deepgram", name: "deepgram"},
		{kind: "ElevenLabs", name: "elevenlabs"},
		{kind: "openai", name: "openai"},
		{kind: "polly", name: "polly"},
		{kind: "google", name: "google"},
		{kind: "azure", name: "azure"},
		{kind: "chain:elevenlabs,polly", name: "chain"},
		{kind: "chain:", wantErr: true},
		{kind: "chain:chain:polly", wantErr: true},
		{kind: "festival", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			p, err := tts.New(tt.kind)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, p.Name())
			}
		})
	}

	t.Run("unknown kind is ErrUnknownProvider", func(t *testing.T) {
		_, err := tts.New("festival")
		if !errors.Is(err, tts.ErrUnknownProvider) {
			t.Errorf("expected ErrUnknownProvider, got %v", err)
		}
	})

	t.Run("chain members resolve their own credentials", func(t *testing.T) {
		var asked []string
		p, err := tts.New("chain:elevenlabs,openai", tts.WithCredentials(func(kind string) string {
			asked = append(asked, kind)
			return "key-" + kind
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := p.Connect(context.Background(), "", "CA1"); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if strings.Join(asked, ",") != "elevenlabs,openai" {
			t.Errorf("unexpected credential lookups: %v", asked)
		}
	})

	t.Run("NewFactory builds fresh instances", func(t *testing.T) {
		f, err := tts.NewFactory("elevenlabs")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, _ := f()
		b, _ := f()
		if a == b {
			t.Error("expected distinct instances")
		}
	})
}

func TestWrapError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("elevenlabs", inner)

	if err.Error() != "tts [elevenlabs]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatal("expected SynthesisError")
	}
	if se.Provider != "elevenlabs" {
		t.Errorf("expected provider elevenlabs, got %s", se.Provider)
	}
	if !errors.Is(err, inner) {
		t.Error("expected inner error to unwrap")
	}

	if again := tts.WrapError("chain", err); again != err {
		t.Error("expected an existing SynthesisError to pass through")
	}
	if tts.WrapError("x", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestTelephonyFormat(t *testing.T) {
	if tts.TelephonyFormat.SampleRate != audioio.SampleRate {
		t.Errorf("expected %d, got %d", audioio.SampleRate, tts.TelephonyFormat.SampleRate)
	}
	if tts.TelephonyFormat.Encoding != tts.EncodingULaw {
		t.Errorf("expected ulaw, got %s", tts.TelephonyFormat.Encoding)
	}
}
