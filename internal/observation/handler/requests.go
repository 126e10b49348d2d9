package handler

import (
	"fieldbook/internal/observation/models"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// CreateRequest is the POST /observations payload.
type CreateRequest struct {
	ImageStorageRef string `json:"image_storage_ref"`
	ImageAccessURL  string `json:"image_access_url,omitempty"`
	LocationEnabled bool   `json:"location_enabled"`
	LocationLabel   string `json:"location_label,omitempty"`
}

func (r CreateRequest) Image() models.ImageRef {
	return models.ImageRef{StorageRef: r.ImageStorageRef, AccessURL: r.ImageAccessURL}
}

func (r CreateRequest) Location() models.Location {
	return models.Location{Enabled: r.LocationEnabled, Label: r.LocationLabel}
}

// ConfirmRequest is the POST /observations/{id}/confirm payload.
type ConfirmRequest struct {
	SpeciesID string `json:"species_id"`
}

func (r ConfirmRequest) ParsedSpeciesID() (domain.SpeciesID, error) {
	return domain.ParseSpeciesID(r.SpeciesID)
}

// RecognitionResultRequest is the mediator's callback payload. Exactly one of
// Failed or a non-empty Suggestions list is expected.
type RecognitionResultRequest struct {
	Failed      bool                   `json:"failed"`
	Suggestions []RecognitionCandidate `json:"suggestions,omitempty"`
}

type RecognitionCandidate struct {
	SpeciesID         string  `json:"species_id"`
	DisplayName       string  `json:"display_name"`
	ScientificName    string  `json:"scientific_name"`
	Confidence        float64 `json:"confidence"`
	ReferenceImageURL string  `json:"reference_image_url,omitempty"`
	Category          string  `json:"category"`
}

func (r RecognitionResultRequest) ParsedSuggestions() ([]models.Suggestion, error) {
	if r.Failed {
		if len(r.Suggestions) > 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "a failed result cannot carry suggestions")
		}
		return nil, nil
	}
	out := make([]models.Suggestion, 0, len(r.Suggestions))
	for _, c := range r.Suggestions {
		speciesID, err := domain.ParseSpeciesID(c.SpeciesID)
		if err != nil {
			return nil, err
		}
		category, err := domain.ParseCategory(c.Category)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Suggestion{
			SpeciesID:         speciesID,
			DisplayName:       c.DisplayName,
			ScientificName:    c.ScientificName,
			Confidence:        c.Confidence,
			ReferenceImageURL: c.ReferenceImageURL,
			Category:          category,
		})
	}
	return out, nil
}
