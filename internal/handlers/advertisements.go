package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/pkg/response"
)

// AdvertisementHandler lists active ads and lets admins manage them.
type AdvertisementHandler struct {
	ads *services.AdvertisementService
}

// NewAdvertisementHandler constructs an AdvertisementHandler.
func NewAdvertisementHandler(ads *services.AdvertisementService) *AdvertisementHandler {
	return &AdvertisementHandler{ads: ads}
}

type createAdvertisementRequest struct {
	Title        string `json:"title" validate:"required,notblank,max=255"`
	MediaURL     string `json:"media_url" validate:"required,url"`
	TargetURL    string `json:"target_url" validate:"omitempty,url"`
	DisplayOrder *int   `json:"display_order" validate:"omitempty,min=0"`
	IsActive     *bool  `json:"is_active"`
}

type updateAdvertisementRequest struct {
	Title        *string `json:"title" validate:"omitempty,notblank,max=255"`
	MediaURL     *string `json:"media_url" validate:"omitempty,url"`
	TargetURL    *string `json:"target_url" validate:"omitempty,url"`
	DisplayOrder *int    `json:"display_order" validate:"omitempty,min=0"`
	IsActive     *bool   `json:"is_active"`
}

// GET /api/advertisements
func (h *AdvertisementHandler) ListActive(c *gin.Context) {
	ads, err := h.ads.ListActive(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, ads)
}

// POST /api/admin/advertisements
func (h *AdvertisementHandler) Create(c *gin.Context) {
	var req createAdvertisementRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ad, err := h.ads.Create(requestContext(c), services.CreateAdvertisementInput{
		Title:        req.Title,
		MediaURL:     req.MediaURL,
		TargetURL:    req.TargetURL,
		DisplayOrder: req.DisplayOrder,
		IsActive:     req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, ad)
}

// PATCH /api/admin/advertisements/:id
func (h *AdvertisementHandler) Update(c *gin.Context) {
	id, ok := pathParam(c, "id")
	if !ok {
		return
	}

	var req updateAdvertisementRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ad, err := h.ads.Update(requestContext(c), id, services.UpdateAdvertisementInput{
		Title:        req.Title,
		MediaURL:     req.MediaURL,
		TargetURL:    req.TargetURL,
		DisplayOrder: req.DisplayOrder,
		IsActive:     req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, ad)
}
