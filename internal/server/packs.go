package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
)

type packResponse struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Credits                  int64   `json:"credits"`
	PriceCents               int64   `json:"price_cents"`
	Price                    string  `json:"price"`
	Currency                 string  `json:"currency"`
	ExternalPriceIDOneTime   *string `json:"external_price_id_one_time,omitempty"`
	ExternalPriceIDRecurring *string `json:"external_price_id_recurring,omitempty"`
}

func (s *Server) ListCreditPacks(c *gin.Context) {
	packs, err := s.packSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]packResponse, 0, len(packs))
	for i := range packs {
		pack := &packs[i]
		out = append(out, packResponse{
			ID:                       pack.ID.String(),
			Name:                     pack.Name,
			Credits:                  pack.Credits,
			PriceCents:               pack.PriceCents,
			Price:                    pack.FormattedPrice(),
			Currency:                 pack.Currency,
			ExternalPriceIDOneTime:   pack.ExternalPriceIDOneTime,
			ExternalPriceIDRecurring: pack.ExternalPriceIDRecurring,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type createPackRequest struct {
	Name                     string  `json:"name"`
	Credits                  int64   `json:"credits"`
	PriceCents               int64   `json:"price_cents"`
	Currency                 string  `json:"currency"`
	ExternalPriceIDOneTime   *string `json:"external_price_id_one_time"`
	ExternalPriceIDRecurring *string `json:"external_price_id_recurring"`
	DisplayOrder             int     `json:"display_order"`
}

func (s *Server) CreateCreditPack(c *gin.Context) {
	var req createPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pack, err := s.packSvc.Create(c.Request.Context(), packdomain.CreatePackRequest{
		Name:                     strings.TrimSpace(req.Name),
		Credits:                  req.Credits,
		PriceCents:               req.PriceCents,
		Currency:                 req.Currency,
		ExternalPriceIDOneTime:   req.ExternalPriceIDOneTime,
		ExternalPriceIDRecurring: req.ExternalPriceIDRecurring,
		DisplayOrder:             req.DisplayOrder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pack})
}

type updatePackRequest struct {
	Name         *string `json:"name,omitempty"`
	Credits      *int64  `json:"credits,omitempty"`
	PriceCents   *int64  `json:"price_cents,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

func (s *Server) UpdateCreditPack(c *gin.Context) {
	var req updatePackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pack, err := s.packSvc.Update(c.Request.Context(), packdomain.UpdatePackRequest{
		ID:           c.Param("id"),
		Name:         req.Name,
		Credits:      req.Credits,
		PriceCents:   req.PriceCents,
		DisplayOrder: req.DisplayOrder,
		Active:       req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pack})
}
