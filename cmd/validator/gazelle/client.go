// client.go
package gazelle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const validationsPath = "/evs/rest/validations"

// Client talks to a Gazelle EVS instance. Validation failures come
// back through the report; transport failures are returned as errors
// and are never retried here.
type Client struct {
	baseURI      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPollTime  time.Duration
	log          zerolog.Logger
}

func NewClient(config Config, log zerolog.Logger) *Client {
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 90 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.MaxPollTime == 0 {
		config.MaxPollTime = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	// Transport failures surface to the caller; only validation
	// failures drive the correction loop. The passthrough handler keeps
	// non-2xx responses visible instead of collapsing them into a
	// generic retry error.
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout: config.HTTPTimeout,
	}

	return &Client{
		baseURI:      strings.TrimSuffix(config.BaseURI, "/"),
		apiKey:       config.APIKey,
		httpClient:   retryClient.StandardClient(),
		pollInterval: config.PollInterval,
		maxPollTime:  config.MaxPollTime,
		log:          log.With().Str("component", "gazelle_client").Logger(),
	}
}

// WithAPIKey returns a shallow copy of the client signing requests
// with the given key. Used for per-user keys on shared clients.
func (c *Client) WithAPIKey(apiKey string) *Client {
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

type validationObject struct {
	OriginalFileName string `json:"originalFileName"`
	Content          string `json:"content"`
}

type validationService struct {
	Name      string `json:"name"`
	Validator string `json:"validator"`
}

type validationRequest struct {
	Objects           []validationObject `json:"objects"`
	ValidationService validationService  `json:"validationService"`
}

// Submit sends content for validation against the validator OID and
// returns the submission handle from the Location header. Content is
// base64-encoded on the wire as the EVS API requires.
func (c *Client) Submit(ctx context.Context, filename string, content []byte, validatorOID string) (*Submission, error) {
	payload := validationRequest{
		Objects: []validationObject{{
			OriginalFileName: filename,
			Content:          base64.StdEncoding.EncodeToString(content),
		}},
		ValidationService: validationService{
			Name:      "Gazelle HL7v2.x validator",
			Validator: validatorOID,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURI+validationsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.signRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach EVS: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted:
		// 201 means validated synchronously, 202 means accepted for
		// async processing. Both carry a Location the report poller
		// resolves the same way.
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, fmt.Errorf("EVS returned %d without a Location header", resp.StatusCode)
		}
		sub, err := parseLocation(location)
		if err != nil {
			return nil, err
		}
		c.log.Debug().
			Str("file", filename).
			Str("oid", sub.Oid).
			Int("status", resp.StatusCode).
			Msg("Validation submitted")
		return sub, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("EVS submission failed with HTTP %d: %s", resp.StatusCode, snippet)
	}
}

// parseLocation extracts the validation OID and privacy key from a
// Location header such as
// .../evs/rest/validations/<oid>?privacyKey=<key>.
func parseLocation(location string) (*Submission, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid Location header %q: %w", location, err)
	}

	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 || idx == len(u.Path)-1 {
		return nil, fmt.Errorf("no validation OID in Location header %q", location)
	}

	return &Submission{
		Oid:        u.Path[idx+1:],
		PrivacyKey: u.Query().Get("privacyKey"),
		Location:   location,
	}, nil
}

func (c *Client) signRequest(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "GazelleAPIKey "+c.apiKey)
	}
}
