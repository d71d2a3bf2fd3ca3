package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/pkg/response"
	validatorpkg "github.com/nexusmail/nexus-mailer/pkg/validator"
)

// TestScheduleMessage_BadJSON verifies that invalid JSON returns 400 Bad Request.
func TestScheduleMessage_BadJSON(t *testing.T) {
	e := echo.New()
	// Validator is not needed here because Bind will fail before Validate is called.
	handler := NewMessageHandler(nil)

	// Malformed JSON (missing closing quote / brace)
	reqBody := `{"recipient": "user@example.com", "subject":`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.ScheduleMessage(c)
	if err != nil {
		t.Fatalf("ScheduleMessage returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}

	if resp.Success {
		t.Fatalf("expected Success=false, got true")
	}
	if resp.Error == "" {
		t.Fatalf("expected Error to be non-empty")
	}
}

// TestScheduleMessage_InvalidRecipient verifies that validation failure
// returns 422 Unprocessable Entity via the validation error handler.
func TestScheduleMessage_InvalidRecipient(t *testing.T) {
	e := echo.New()
	// Use the real custom validator so we exercise the normal flow.
	e.Validator = validatorpkg.New()

	// service is nil on purpose; we want validation to fail before service is called.
	handler := NewMessageHandler(nil)

	reqBody := `{"userId": 7, "recipient": "not-an-email", "subject": "Hi", "body": "<p>Hi</p>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(reqBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.ScheduleMessage(c)
	if err != nil {
		t.Fatalf("ScheduleMessage returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

// TestGetMessage_InvalidID verifies that a non-numeric id returns 400.
func TestGetMessage_InvalidID(t *testing.T) {
	e := echo.New()
	handler := NewMessageHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	if err := handler.GetMessage(c); err != nil {
		t.Fatalf("GetMessage returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestParsePaginationParams_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page != 1 || pageSize != 20 {
		t.Errorf("expected defaults 1/20, got %d/%d", page, pageSize)
	}
}

func TestParsePaginationParams_RejectsOutOfRange(t *testing.T) {
	e := echo.New()

	for _, target := range []string{
		"/api/v1/messages?page=0",
		"/api/v1/messages?page=x",
		"/api/v1/messages?pageSize=0",
		"/api/v1/messages?pageSize=101",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		c := e.NewContext(req, httptest.NewRecorder())

		if _, _, err := parsePaginationParams(c); err == nil {
			t.Errorf("%s: expected an error", target)
		}
	}
}
