package handlers

import (
	"net/http"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
)

// ConfigHandler exposes the settings a kiosk needs before anyone logs in
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the public configuration
type ConfigResponse struct {
	DescriptorSize    int     `json:"descriptor_size"`
	FaceThreshold     float64 `json:"face_threshold"`
	MaxFaceAttempts   int     `json:"max_face_attempts"`
	LoanDays          int     `json:"loan_days"`
	ReissueDays       int     `json:"reissue_days"`
	CoverMatchPercent int     `json:"cover_match_percent"`
	MailNotifications bool    `json:"mail_notifications"`
	DatabaseReady     bool    `json:"database_ready"`
}

// Get returns the public configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		DescriptorSize:    faceauth.DescriptorSize,
		FaceThreshold:     h.config.FaceAuth.Threshold,
		MaxFaceAttempts:   h.config.FaceAuth.MaxAttempts,
		LoanDays:          h.config.Library.LoanDays,
		ReissueDays:       h.config.Library.ReissueDays,
		CoverMatchPercent: h.config.Library.CoverMatchPercent,
		MailNotifications: h.config.SMTP.Enabled(),
		DatabaseReady:     database.IsInitialized(),
	})
}
