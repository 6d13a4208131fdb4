package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/faceauth"
)

func TestConfigHandler_Get(t *testing.T) {
	setupMocks(t)
	cfg := testConfig()
	handler := NewConfigHandler(cfg)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var resp ConfigResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.DescriptorSize != faceauth.DescriptorSize {
		t.Errorf("descriptor_size = %d, want %d", resp.DescriptorSize, faceauth.DescriptorSize)
	}
	if resp.FaceThreshold != cfg.FaceAuth.Threshold || resp.MaxFaceAttempts != 3 {
		t.Errorf("face settings = %v/%d", resp.FaceThreshold, resp.MaxFaceAttempts)
	}
	if resp.LoanDays != 14 || resp.ReissueDays != 7 || resp.CoverMatchPercent != 70 {
		t.Errorf("library settings = %+v", resp)
	}
	if resp.MailNotifications {
		t.Error("expected mail notifications to be off without SMTP_HOST")
	}
	if !resp.DatabaseReady {
		t.Error("expected database_ready with registered stores")
	}
}

func TestConfigHandler_Get_MailEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 587}

	recorder := httptest.NewRecorder()
	NewConfigHandler(cfg).Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	var resp ConfigResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.MailNotifications {
		t.Error("expected mail notifications with SMTP_HOST set")
	}
	if resp.DatabaseReady {
		t.Error("expected database_ready=false without a backend")
	}
}
