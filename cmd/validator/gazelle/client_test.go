package gazelle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURI string) *Client {
	return NewClient(Config{
		BaseURI:      baseURI,
		APIKey:       "test-key",
		PollInterval: 10 * time.Millisecond,
		MaxPollTime:  500 * time.Millisecond,
	}, zerolog.Nop())
}

func TestSubmit(t *testing.T) {
	content := []byte(`<?xml version="1.0" encoding="UTF-8"?><SIU_S12></SIU_S12>`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, validationsPath, r.URL.Path)
		assert.Equal(t, "GazelleAPIKey test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req validationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Objects, 1)
		assert.Equal(t, "message.xml", req.Objects[0].OriginalFileName)
		assert.Equal(t, "Gazelle HL7v2.x validator", req.ValidationService.Name)
		assert.Equal(t, "1.3.6.1.4.12559.11.36.9.20", req.ValidationService.Validator)

		decoded, err := base64.StdEncoding.DecodeString(req.Objects[0].Content)
		require.NoError(t, err)
		assert.Equal(t, content, decoded)

		w.Header().Set("Location", validationsPath+"/oid-123?privacyKey=secret")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sub, err := client.Submit(context.Background(), "message.xml", content, "1.3.6.1.4.12559.11.36.9.20")

	require.NoError(t, err)
	assert.Equal(t, "oid-123", sub.Oid)
	assert.Equal(t, "secret", sub.PrivacyKey)
}

func TestSubmit_AcceptedForAsyncProcessing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", validationsPath+"/oid-async")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sub, err := newTestClient(server.URL).Submit(context.Background(), "m.xml", []byte("<x/>"), "oid")

	require.NoError(t, err)
	assert.Equal(t, "oid-async", sub.Oid)
	assert.Empty(t, sub.PrivacyKey)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			"unauthorized",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthorized)
			},
		},
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "HTTP 500")
			},
		},
		{
			"created without location header",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			},
			func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "Location")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Submit(context.Background(), "m.xml", []byte("<x/>"), "oid")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSubmit_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Location", validationsPath+"/oid-1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURI: server.URL}, zerolog.Nop())
	_, err := client.Submit(context.Background(), "m.xml", []byte("<x/>"), "oid")
	require.NoError(t, err)
}

func TestWithAPIKey(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.Header().Set("Location", validationsPath+"/oid-1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	shared := newTestClient(server.URL)
	personal := shared.WithAPIKey("user-key")

	_, err := shared.Submit(context.Background(), "m.xml", []byte("<x/>"), "oid")
	require.NoError(t, err)
	_, err = personal.Submit(context.Background(), "m.xml", []byte("<x/>"), "oid")
	require.NoError(t, err)

	assert.Equal(t, []string{"GazelleAPIKey test-key", "GazelleAPIKey user-key"}, got)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		wantOid  string
		wantKey  string
		wantErr  bool
	}{
		{
			"absolute with privacy key",
			"https://evs.example.org/evs/rest/validations/1.2.3.4?privacyKey=abc",
			"1.2.3.4", "abc", false,
		},
		{
			"relative without key",
			"/evs/rest/validations/oid-9",
			"oid-9", "", false,
		},
		{
			"trailing slash",
			"https://evs.example.org/evs/rest/validations/",
			"", "", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := parseLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOid, sub.Oid)
			assert.Equal(t, tt.wantKey, sub.PrivacyKey)
		})
	}
}
