package handler

import (
	"time"

	"fieldbook/internal/discovery"
	"fieldbook/internal/observation/models"
)

// ObservationResponse is the wire shape of one observation record.
type ObservationResponse struct {
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Image       ImageResponse         `json:"image"`
	Suggestions []SuggestionResponse  `json:"suggestions"`
	Confirmed   *ConfirmationResponse `json:"confirmed,omitempty"`
	Location    LocationResponse      `json:"location"`
}

type ImageResponse struct {
	StorageRef string `json:"storage_ref"`
	AccessURL  string `json:"access_url,omitempty"`
}

type SuggestionResponse struct {
	SpeciesID         string  `json:"species_id"`
	DisplayName       string  `json:"display_name"`
	ScientificName    string  `json:"scientific_name"`
	Confidence        float64 `json:"confidence"`
	ReferenceImageURL string  `json:"reference_image_url,omitempty"`
	Category          string  `json:"category"`
}

type ConfirmationResponse struct {
	SpeciesID    string  `json:"species_id"`
	Confidence   float64 `json:"confidence"`
	IsNewForUser bool    `json:"is_new_for_user"`
}

type LocationResponse struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label,omitempty"`
}

// ConfirmResponse reports a completed confirmation with the resulting stats.
type ConfirmResponse struct {
	Observation  ObservationResponse `json:"observation"`
	IsNewSpecies bool                `json:"is_new_species"`
	Stats        StatsResponse       `json:"stats"`
}

type StatsResponse struct {
	ObservationCount int `json:"observation_count"`
	SpeciesCount     int `json:"species_count"`
}

// ListResponse wraps the collection query result.
type ListResponse struct {
	Observations []ObservationResponse `json:"observations"`
}

func FromObservation(obs *models.Observation) ObservationResponse {
	resp := ObservationResponse{
		ID:        obs.ID.String(),
		Status:    obs.Status.String(),
		CreatedAt: obs.CreatedAt,
		UpdatedAt: obs.UpdatedAt,
		Image:     ImageResponse{StorageRef: obs.Image.StorageRef, AccessURL: obs.Image.AccessURL},
		Location:  LocationResponse{Enabled: obs.Location.Enabled, Label: obs.Location.Label},
	}
	resp.Suggestions = make([]SuggestionResponse, 0, len(obs.Suggestions))
	for _, s := range obs.Suggestions {
		resp.Suggestions = append(resp.Suggestions, SuggestionResponse{
			SpeciesID:         s.SpeciesID.String(),
			DisplayName:       s.DisplayName,
			ScientificName:    s.ScientificName,
			Confidence:        s.Confidence,
			ReferenceImageURL: s.ReferenceImageURL,
			Category:          s.Category.String(),
		})
	}
	if obs.Confirmed != nil {
		resp.Confirmed = &ConfirmationResponse{
			SpeciesID:    obs.Confirmed.SpeciesID.String(),
			Confidence:   obs.Confirmed.Confidence,
			IsNewForUser: obs.Confirmed.IsNewForUser,
		}
	}
	return resp
}

func FromConfirmResult(res *discovery.Result) ConfirmResponse {
	return ConfirmResponse{
		Observation:  FromObservation(res.Observation),
		IsNewSpecies: res.IsNewSpecies,
		Stats: StatsResponse{
			ObservationCount: res.Stats.ObservationCount,
			SpeciesCount:     res.Stats.SpeciesCount,
		},
	}
}

func FromObservations(records []*models.Observation) ListResponse {
	out := ListResponse{Observations: make([]ObservationResponse, 0, len(records))}
	for _, obs := range records {
		out.Observations = append(out.Observations, FromObservation(obs))
	}
	return out
}
