package service

import (
	"context"
	"strings"

	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/storage"

	"github.com/google/uuid"
)

// PatchSearchInput holds the optional filters of a patch search. Blank fields are ignored.
type PatchSearchInput struct {
	Name           string `query:"name"`
	Description    string `query:"description"`
	Maker          string `query:"maker"`
	Section        string `query:"section"`
	UniversityCode string `query:"universityCode"`
}

// PatchService serves the published catalogue.
type PatchService struct {
	patchRepo     repository.PatchRepository
	userPatchRepo repository.UserPatchRepository
	store         storage.Store
}

// NewPatchService returns a new PatchService.
func NewPatchService(
	patchRepo repository.PatchRepository,
	userPatchRepo repository.UserPatchRepository,
	store storage.Store,
) *PatchService {
	return &PatchService{patchRepo: patchRepo, userPatchRepo: userPatchRepo, store: store}
}

// GetPatch returns one patch, flagged with whether the requester owns it.
func (s *PatchService) GetPatch(ctx context.Context, number uint, requesterID uuid.UUID) (*models.Patch, error) {
	patch, err := s.patchRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	patches, err := s.annotate(ctx, []models.Patch{*patch}, requesterID)
	if err != nil {
		return nil, err
	}
	return &patches[0], nil
}

// GetPatches pages through the catalogue in patch-number order.
func (s *PatchService) GetPatches(ctx context.Context, requesterID uuid.UUID, skip, take int) ([]models.Patch, error) {
	skip, take = clampPage(skip, take)
	patches, err := s.patchRepo.List(ctx, skip, take)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, patches, requesterID)
}

// SearchPatches returns patches matching every non-blank filter.
func (s *PatchService) SearchPatches(ctx context.Context, in PatchSearchInput, requesterID uuid.UUID, skip, take int) ([]models.Patch, error) {
	skip, take = clampPage(skip, take)
	filter := repository.PatchFilter{
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Maker:          strings.TrimSpace(in.Maker),
		Section:        strings.TrimSpace(in.Section),
		UniversityCode: strings.TrimSpace(in.UniversityCode),
	}
	patches, err := s.patchRepo.Search(ctx, filter, skip, take)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, patches, requesterID)
}

func (s *PatchService) annotate(ctx context.Context, patches []models.Patch, requesterID uuid.UUID) ([]models.Patch, error) {
	numbers := make([]uint, len(patches))
	for i := range patches {
		numbers[i] = patches[i].PatchNumber
	}
	owned, err := s.userPatchRepo.OwnedNumbers(ctx, requesterID, numbers)
	if err != nil {
		return nil, err
	}
	for i := range patches {
		patches[i].IsOwned = owned[patches[i].PatchNumber]
		patches[i].ImageURL = presignedURL(ctx, s.store, patches[i].FileKey)
	}
	return patches, nil
}
