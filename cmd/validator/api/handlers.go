// handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slices"

	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/history"
	"github.com/ddeveloper72/hl7validator/cmd/validator/orchestrator"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
)

const maxUploadBytes = 16 << 20 // 16MB

var allowedExtensions = []string{".xml", ".txt"}

// upload is a message held in the result store between upload and
// validation.
type upload struct {
	Filename    string `json:"filename"`
	MessageType string `json:"messageType"`
	Content     []byte `json:"-"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleValidators(w http.ResponseWriter, r *http.Request) {
	types := rt.registry.MessageTypes()
	out := make([]map[string]string, 0, len(types))
	for _, t := range types {
		profile, _ := rt.registry.Lookup(t)
		out = append(out, map[string]string{
			"messageType": t,
			"name":        profile.Name,
			"oid":         profile.Oid,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (rt *Router) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "could not parse upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(allowedExtensions, ext) {
		respondWithError(w, http.StatusBadRequest, "file must be .xml or .txt")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}

	messageType := gazelle.DetectMessageType(content)
	if messageType == "" {
		respondWithError(w, http.StatusBadRequest, "could not detect HL7 message type")
		return
	}
	if _, ok := rt.registry.Lookup(messageType); !ok {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("no validator configured for %s", messageType))
		return
	}

	id := rt.store.Put(&upload{
		Filename:    header.Filename,
		MessageType: messageType,
		Content:     content,
	})

	rt.log.Info().
		Str("file", header.Filename).
		Str("message_type", messageType).
		Str("id", id.ID).
		Msg("File uploaded")

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"id":          id.ID,
		"filename":    header.Filename,
		"messageType": messageType,
	})
}

func (rt *Router) handleValidate(w http.ResponseWriter, r *http.Request) {
	up, ok := rt.loadUpload(w, r)
	if !ok {
		return
	}
	profile, _ := rt.registry.Lookup(up.MessageType)

	orch, userID := rt.orchestratorFor(r)
	report, err := orch.Validate(r.Context(), up.Filename, up.Content, profile.Oid)
	if err != nil {
		rt.respondValidationError(w, err)
		return
	}

	rt.persistEntry(r.Context(), userID, history.Entry{
		Filename:     up.Filename,
		MessageType:  up.MessageType,
		Status:       report.Status.String(),
		ErrorCount:   len(report.Errors),
		WarningCount: len(report.Warnings),
		ReportURL:    report.PermalinkURL,
	})

	respondWithJSON(w, http.StatusOK, report)
}

func (rt *Router) handleAutoValidate(w http.ResponseWriter, r *http.Request) {
	up, ok := rt.loadUpload(w, r)
	if !ok {
		return
	}
	profile, _ := rt.registry.Lookup(up.MessageType)

	orch, userID := rt.orchestratorFor(r)
	result, err := orch.AutoValidate(r.Context(), up.Filename, up.Content, profile.Oid)
	if err != nil {
		rt.respondValidationError(w, err)
		return
	}

	last := result.Iterations[len(result.Iterations)-1]
	rt.persistEntry(r.Context(), userID, history.Entry{
		Filename:        up.Filename,
		MessageType:     up.MessageType,
		Status:          result.Final.String(),
		ErrorCount:      last.ErrorCount,
		WarningCount:    last.WarningCount,
		CorrectionCount: result.Corrections.Total,
		ReportURL:       result.FinalReportURL,
	})

	respondWithJSON(w, http.StatusOK, result)
}

func (rt *Router) handleReport(w http.ResponseWriter, r *http.Request) {
	value, ok := rt.loadResult(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, value)
}

func (rt *Router) handleCorrectionReport(w http.ResponseWriter, r *http.Request) {
	value, ok := rt.loadResult(w, r)
	if !ok {
		return
	}
	result, isRun := value.(*orchestrator.Result)
	if !isRun {
		respondWithError(w, http.StatusNotFound, "no correction report for this id")
		return
	}

	var sb strings.Builder
	for _, iter := range result.Iterations {
		if iter.Corrections == nil || (iter.Corrections.Total() == 0 && len(iter.Corrections.Skipped) == 0) {
			continue
		}
		fmt.Fprintf(&sb, "## Iteration %d\n\n%s\n", iter.Attempt, iter.Corrections.Markdown())
	}
	if sb.Len() == 0 {
		sb.WriteString("No corrections were needed.\n")
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, sb.String())
}

func (rt *Router) handleDownload(w http.ResponseWriter, r *http.Request) {
	value, ok := rt.loadResult(w, r)
	if !ok {
		return
	}
	result, isRun := value.(*orchestrator.Result)
	if !isRun {
		respondWithError(w, http.StatusNotFound, "no corrected file for this id")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", correctedFilename(result.Filename)))
	w.WriteHeader(http.StatusOK)
	w.Write(result.CorrectedContent)
}

func (rt *Router) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		respondWithError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	var body struct {
		Email  string `json:"email"`
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.APIKey == "" {
		respondWithError(w, http.StatusBadRequest, "email and apiKey are required")
		return
	}

	userID, err := rt.history.CreateOrUpdateUser(r.Context(), body.Email, nil, nil)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := rt.history.SetUserAPIKey(r.Context(), userID, body.APIKey); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"userId": userID})
}

func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := rt.history.GetUserValidationHistory(r.Context(), user.ID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (rt *Router) handleStatistics(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	stats, err := rt.history.GetUserStatistics(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// Helpers

// orchestratorFor resolves the caller's stored API key when one
// exists, falling back to the service-level key.
func (rt *Router) orchestratorFor(r *http.Request) (*orchestrator.Service, int64) {
	email := r.Header.Get("X-User-Email")
	if email == "" || rt.history == nil {
		return rt.orchestrator, 0
	}

	user, err := rt.history.GetUserByEmail(r.Context(), email)
	if err != nil {
		rt.log.Debug().Str("email", email).Err(err).Msg("Unknown user, using service API key")
		return rt.orchestrator, 0
	}

	apiKey, err := rt.history.GetUserAPIKey(r.Context(), user.ID)
	if err != nil {
		if !errors.Is(err, history.ErrNoAPIKey) {
			rt.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to load user API key")
		}
		return rt.orchestrator, user.ID
	}

	return rt.orchestrator.WithClient(rt.baseClient.WithAPIKey(apiKey)), user.ID
}

func (rt *Router) persistEntry(ctx context.Context, userID int64, entry history.Entry) {
	if rt.history == nil || userID == 0 {
		return
	}
	entry.UserID = userID
	if _, err := rt.history.SaveValidationResult(ctx, entry); err != nil {
		rt.log.Error().Err(err).Msg("Failed to persist validation result")
	}
}

func (rt *Router) requireUser(w http.ResponseWriter, r *http.Request) (*history.User, bool) {
	if rt.history == nil {
		respondWithError(w, http.StatusServiceUnavailable, "no database configured")
		return nil, false
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		email = r.Header.Get("X-User-Email")
	}
	if email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return nil, false
	}
	user, err := rt.history.GetUserByEmail(r.Context(), email)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "unknown user")
		return nil, false
	}
	return user, true
}

func (rt *Router) loadUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	id := mux.Vars(r)["id"]
	value, ok := rt.store.Get(resultstore.ReportID{Origin: resultstore.OriginEphemeral, ID: id})
	if !ok {
		respondWithError(w, http.StatusNotFound, "upload not found or expired")
		return nil, false
	}
	up, isUpload := value.(*upload)
	if !isUpload {
		respondWithError(w, http.StatusNotFound, "id does not reference an upload")
		return nil, false
	}
	return up, true
}

func (rt *Router) loadResult(w http.ResponseWriter, r *http.Request) (any, bool) {
	id := mux.Vars(r)["id"]
	value, ok := rt.store.Get(resultstore.ReportID{Origin: resultstore.OriginEphemeral, ID: id})
	if !ok {
		respondWithError(w, http.StatusNotFound, "report not found or expired")
		return nil, false
	}
	return value, true
}

func (rt *Router) respondValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gazelle.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, gazelle.ErrReportPending):
		respondWithError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "validation timed out")
	default:
		respondWithError(w, http.StatusBadGateway, err.Error())
	}
}

func correctedFilename(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_corrected" + ext
}

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
