package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nexusmail/nexus-mailer/internal/service"
)

type fakeTrackingRepo struct {
	opened    []string
	clicked   []string
	markErr   error
	openedNew bool
}

func (f *fakeTrackingRepo) MarkOpened(_ context.Context, token string, _ time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	f.opened = append(f.opened, token)
	return f.openedNew, nil
}

func (f *fakeTrackingRepo) MarkClicked(_ context.Context, token string, _ time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	f.clicked = append(f.clicked, token)
	return true, nil
}

func newTrackingContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestTrackOpen_ServesPixelAndRecords(t *testing.T) {
	repo := &fakeTrackingRepo{openedNew: true}
	handler := NewTrackingHandler(service.NewTrackingService(repo, nil))

	c, rec := newTrackingContext("/track/tok-1")
	c.SetParamNames("token")
	c.SetParamValues("tok-1")

	if err := handler.TrackOpen(c); err != nil {
		t.Fatalf("TrackOpen returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "image/gif" {
		t.Errorf("expected image/gif, got %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), transparentGIF) {
		t.Error("expected the transparent pixel body")
	}
	if cc := rec.Header().Get("Cache-Control"); cc == "" {
		t.Error("expected a Cache-Control header on the beacon")
	}
	if len(repo.opened) != 1 || repo.opened[0] != "tok-1" {
		t.Errorf("expected open recorded for tok-1, got %v", repo.opened)
	}
}

func TestTrackOpen_StorageErrorStillServesPixel(t *testing.T) {
	repo := &fakeTrackingRepo{markErr: errors.New("db down")}
	handler := NewTrackingHandler(service.NewTrackingService(repo, nil))

	c, rec := newTrackingContext("/track/tok-2")
	c.SetParamNames("token")
	c.SetParamValues("tok-2")

	if err := handler.TrackOpen(c); err != nil {
		t.Fatalf("TrackOpen returned error: %v", err)
	}

	// The mail client must never see the failure.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), transparentGIF) {
		t.Error("expected the transparent pixel body despite the storage error")
	}
}

func TestTrackClick_RecordsAndRedirects(t *testing.T) {
	repo := &fakeTrackingRepo{}
	handler := NewTrackingHandler(service.NewTrackingService(repo, nil))

	c, rec := newTrackingContext("/click/tok-3?url=https%3A%2F%2Fshop.example.com%2Fsale")
	c.SetParamNames("token")
	c.SetParamValues("tok-3")

	if err := handler.TrackClick(c); err != nil {
		t.Fatalf("TrackClick returned error: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "https://shop.example.com/sale" {
		t.Errorf("expected redirect to original destination, got %q", loc)
	}
	if len(repo.clicked) != 1 || repo.clicked[0] != "tok-3" {
		t.Errorf("expected click recorded for tok-3, got %v", repo.clicked)
	}
}

func TestTrackClick_MissingURLReturns400(t *testing.T) {
	handler := NewTrackingHandler(service.NewTrackingService(&fakeTrackingRepo{}, nil))

	c, rec := newTrackingContext("/click/tok-4")
	c.SetParamNames("token")
	c.SetParamValues("tok-4")

	if err := handler.TrackClick(c); err != nil {
		t.Fatalf("TrackClick returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestTrackClick_RejectsNonHTTPScheme(t *testing.T) {
	handler := NewTrackingHandler(service.NewTrackingService(&fakeTrackingRepo{}, nil))

	c, rec := newTrackingContext("/click/tok-5?url=javascript%3Aalert(1)")
	c.SetParamNames("token")
	c.SetParamValues("tok-5")

	if err := handler.TrackClick(c); err != nil {
		t.Fatalf("TrackClick returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestTrackClick_StorageErrorStillRedirects(t *testing.T) {
	repo := &fakeTrackingRepo{markErr: errors.New("db down")}
	handler := NewTrackingHandler(service.NewTrackingService(repo, nil))

	c, rec := newTrackingContext("/click/tok-6?url=https%3A%2F%2Fexample.com")
	c.SetParamNames("token")
	c.SetParamValues("tok-6")

	if err := handler.TrackClick(c); err != nil {
		t.Fatalf("TrackClick returned error: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302 despite the storage error, got %d", rec.Code)
	}
}
