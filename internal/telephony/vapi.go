package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dialer-platform/internal/config"
)

// VAPIProvider places outbound calls through the VAPI voice-AI HTTP API.
// It is a thin adapter: request shaping and response decoding only; retry
// and rate decisions belong to the dispatch scheduler.
type VAPIProvider struct {
	cfg  config.ProviderConfig
	http *http.Client
}

func NewVAPIProvider(cfg config.ProviderConfig, timeout time.Duration) *VAPIProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VAPIProvider{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

func (p *VAPIProvider) Name() string { return "vapi" }

type vapiPlaceCallBody struct {
	AssistantID   string            `json:"assistantId"`
	PhoneNumberID string            `json:"phoneNumberId"`
	Customer      vapiCustomer      `json:"customer"`
	Metadata      map[string]string `json:"metadata"`

	AssistantOverrides *vapiAssistantOverrides `json:"assistantOverrides,omitempty"`
}

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type vapiAssistantOverrides struct {
	FirstMessage string `json:"firstMessage,omitempty"`
}

type vapiCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (p *VAPIProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.PhoneE164 == "" || req.RecordID == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: phone and record id are required")
	}

	body := vapiPlaceCallBody{
		AssistantID:   p.cfg.AssistantID,
		PhoneNumberID: p.cfg.PhoneNumberID,
		Customer:      vapiCustomer{Number: req.PhoneE164, Name: req.FirstName},
		Metadata:      map[string]string{"record_id": req.RecordID},
	}
	if req.FirstName != "" {
		body.AssistantOverrides = &vapiAssistantOverrides{
			FirstMessage: fmt.Sprintf("Hi %s! Is this a good time to talk briefly?", req.FirstName),
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return PlaceCallResult{}, err
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/call/phone"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return PlaceCallResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi returned %d: %w", resp.StatusCode, ErrPlacementRejected)
	}

	var decoded vapiCallResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi response decode failed: %w", err)
	}
	if decoded.ID == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi response missing call id: %w", ErrPlacementRejected)
	}

	return PlaceCallResult{
		ProviderCallID: decoded.ID,
		Status:         decoded.Status,
		Raw:            string(raw),
	}, nil
}
