package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

var ErrParticipantNotFound = errors.New("participant not found")

// HTTPDirectory resolves participant identities against the external
// meeting store. Implements core.ParticipantDirectory.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *HTTPDirectory) ResolveParticipant(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	endpoint := d.baseURL + "/participants/" + url.PathEscape(string(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build resolve request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve participant: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrParticipantNotFound
	default:
		return nil, fmt.Errorf("resolve participant: unexpected status %d", resp.StatusCode)
	}

	var p domain.Participant
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode participant: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// RecordParticipantLeft is fire-and-forget: the caller treats a lost leave
// timestamp as cosmetic.
func (d *HTTPDirectory) RecordParticipantLeft(ctx context.Context, id domain.ParticipantID) error {
	endpoint := d.baseURL + "/participants/" + url.PathEscape(string(id)) + "/left"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build leave request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn().Str("module", "auth.directory").Str("participant", string(id)).Int("status", resp.StatusCode).Msg("record leave rejected")
	}
	return nil
}
