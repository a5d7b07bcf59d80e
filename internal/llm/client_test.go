package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient(t *testing.T) {
	t.Run("sends headers and joins text blocks", func(t *testing.T) {
		var gotReq AnthropicRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
			assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}]}`))
		}))
		defer srv.Close()

		c := NewAnthropicClientWithConfig(AnthropicConfig{
			APIKey: "test-key", BaseURL: srv.URL, Model: "m",
		})
		out, err := c.CompleteWithSystem(context.Background(), "sys", "user")
		require.NoError(t, err)
		assert.Equal(t, "part one part two", out)
		assert.Equal(t, "sys", gotReq.System)
		require.Len(t, gotReq.Messages, 1)
		assert.Equal(t, "user", gotReq.Messages[0].Role)
	})

	t.Run("API error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"type": "invalid_request", "message": "bad model"}}`))
		}))
		defer srv.Close()

		c := NewAnthropicClientWithConfig(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
		_, err := c.Complete(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("missing API key fails before any request", func(t *testing.T) {
		c := NewAnthropicClientWithConfig(AnthropicConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := c.Complete(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})
}

func TestOpenAICompatibleClient(t *testing.T) {
	t.Run("system message prepended", func(t *testing.T) {
		var gotReq ChatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "  answer  "}}]}`))
		}))
		defer srv.Close()

		c := NewOpenAICompatibleClientWithConfig(OpenAIConfig{
			APIKey: "test-key", BaseURL: srv.URL, Model: "m",
		})
		out, err := c.CompleteWithSystem(context.Background(), "sys", "user")
		require.NoError(t, err)
		assert.Equal(t, "answer", out, "whitespace trimmed")
		require.Len(t, gotReq.Messages, 2)
		assert.Equal(t, "system", gotReq.Messages[0].Role)
		assert.Equal(t, "user", gotReq.Messages[1].Role)
	})

	t.Run("retries on 429 then succeeds", func(t *testing.T) {
		attempts := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
		}))
		defer srv.Close()

		c := NewOpenAICompatibleClientWithConfig(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
		out, err := c.Complete(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 2, attempts)
	})

	t.Run("non-retryable status fails immediately", func(t *testing.T) {
		attempts := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewOpenAICompatibleClientWithConfig(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL})
		_, err := c.Complete(context.Background(), "p")
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("enforces minimum request gap", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
		}))
		defer srv.Close()

		c := NewOpenAICompatibleClientWithConfig(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
		start := time.Now()
		_, err := c.Complete(context.Background(), "one")
		require.NoError(t, err)
		_, err = c.Complete(context.Background(), "two")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)
	})
}

func TestDetectProvider(t *testing.T) {
	clearKeys := func(t *testing.T) {
		for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "DEEPSEEK_API_KEY", "MOONSHOT_API_KEY"} {
			t.Setenv(k, "")
		}
	}

	t.Run("no keys configured", func(t *testing.T) {
		clearKeys(t)
		_, _, err := DetectProvider()
		assert.Error(t, err)
	})

	t.Run("priority order", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("DEEPSEEK_API_KEY", "dk")
		t.Setenv("OPENAI_API_KEY", "ok")

		provider, key, err := DetectProvider()
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider)
		assert.Equal(t, "ok", key)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("all known providers construct", func(t *testing.T) {
		for _, p := range []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderDeepSeek, ProviderMoonshot} {
			c, err := NewClient(p, "key", "", 0, 0)
			require.NoError(t, err, p)
			assert.NotNil(t, c, p)
		}
	})

	t.Run("max tokens carried into the request body", func(t *testing.T) {
		c, err := NewClient(ProviderAnthropic, "key", "", 1234, 0)
		require.NoError(t, err)
		ac, ok := c.(*AnthropicClient)
		require.True(t, ok)
		assert.Equal(t, 1234, ac.maxTokens)

		c, err = NewClient(ProviderGemini, "key", "", 1234, 0)
		require.NoError(t, err)
		gc, ok := c.(*GeminiClient)
		require.True(t, ok)
		assert.Equal(t, 1234, gc.maxOutputTokens)
	})

	t.Run("zero max tokens keeps provider default", func(t *testing.T) {
		c, err := NewClient(ProviderOpenAI, "key", "", 0, 0)
		require.NoError(t, err)
		oc, ok := c.(*OpenAICompatibleClient)
		require.True(t, ok)
		assert.Equal(t, 4096, oc.maxTokens)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		_, err := NewClient(Provider("grok"), "key", "", 0, 0)
		assert.Error(t, err)
	})
}
