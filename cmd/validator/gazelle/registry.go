// registry.go
package gazelle

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/rs/zerolog"
)

// ValidatorProfile maps an HL7 message type onto the EVS validator
// that checks it.
type ValidatorProfile struct {
	Name string `json:"name"`
	Oid  string `json:"oid"`
}

// Registry holds the message-type to validator mapping. Loaded once
// from JSON so new validators are pure data, no code changes.
type Registry struct {
	profiles map[string]ValidatorProfile
	log      zerolog.Logger
}

func NewRegistry(path string, log zerolog.Logger) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validators file: %w", err)
	}

	var profiles map[string]ValidatorProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse validators file: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no validators defined in %s", path)
	}

	for msgType, p := range profiles {
		if p.Oid == "" {
			return nil, fmt.Errorf("validator for %s has no OID", msgType)
		}
	}

	log.Info().Int("validators", len(profiles)).Str("path", path).Msg("Loaded validator registry")

	return &Registry{
		profiles: profiles,
		log:      log.With().Str("component", "validator_registry").Logger(),
	}, nil
}

// Lookup returns the validator profile for a message type.
func (r *Registry) Lookup(messageType string) (ValidatorProfile, bool) {
	p, ok := r.profiles[messageType]
	return p, ok
}

// MessageTypes returns the supported message types, sorted.
func (r *Registry) MessageTypes() []string {
	types := make([]string, 0, len(r.profiles))
	for t := range r.profiles {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// rootElementPattern matches the HL7v2 XML root element, which names
// the message structure, e.g. <SIU_S12 ...> or <REF_I12>.
var rootElementPattern = regexp.MustCompile(`<([A-Z]{3})_([A-Z0-9]{3})[\s>]`)

// DetectMessageType sniffs the message type (e.g. "SIU^S12") from the
// XML root element. Returns "" when no HL7 structure is recognized.
func DetectMessageType(content []byte) string {
	m := rootElementPattern.FindSubmatch(content)
	if m == nil {
		return ""
	}
	return string(m[1]) + "^" + string(m[2])
}
