package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/domain/returns"
	"marketplace/internal/infrastructure/http/v1/dto"
)

// ReturnHandler handles HTTP requests for returns.
type ReturnHandler struct {
	*BaseHandler
	service *returns.Service
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(base *BaseHandler, service *returns.Service) *ReturnHandler {
	return &ReturnHandler{BaseHandler: base, service: service}
}

// Create handles POST /returns
func (h *ReturnHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	ret, err := h.service.CreateReturn(c.Request.Context(), actor.ID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, ret)
}

// Get handles GET /returns/:id
func (h *ReturnHandler) Get(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	returnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ret, err := h.service.GetReturn(c.Request.Context(), returnID, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ret)
}

// ListForOrder handles GET /orders/:id/returns
func (h *ReturnHandler) ListForOrder(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	list, err := h.service.ListReturnsForOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, list)
}

// Review handles POST /returns/:id/review
func (h *ReturnHandler) Review(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	returnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ret, err := h.service.ReviewReturn(c.Request.Context(), returnID, returns.Decision(req.Decision), actor, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ret)
}

// UpdateStatus handles PATCH /returns/:id/status
func (h *ReturnHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	returnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReturnStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ret, err := h.service.UpdateReturnStatus(c.Request.Context(), returnID, req.ToDomain(), actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ret)
}

// UpdateItemStatus handles PATCH /return-items/:id/status
func (h *ReturnHandler) UpdateItemStatus(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	itemID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReturnStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ret, err := h.service.UpdateReturnItemStatus(c.Request.Context(), itemID, req.ToDomain(), actor)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ret)
}

// Cancel handles POST /returns/:id/cancel
func (h *ReturnHandler) Cancel(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	returnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ret, err := h.service.CancelReturn(c.Request.Context(), returnID, actor.ID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ret)
}
