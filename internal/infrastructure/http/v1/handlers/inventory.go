package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles HTTP requests for the stock ledger.
type InventoryHandler struct {
	*BaseHandler
	ledger *inventory.Ledger
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, ledger *inventory.Ledger) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, ledger: ledger}
}

// Available handles GET /inventory/stock?productId=&variantId=
func (h *InventoryHandler) Available(c *gin.Context) {
	var req dto.StockKeyRequest
	if !h.BindQuery(c, &req) {
		return
	}
	key, err := req.ToKey()
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := h.ledger.GetAvailableQuantity(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewStockResponse(key, qty))
}

// manageKey parses the unit key and checks the caller may manage it.
func (h *InventoryHandler) manageKey(c *gin.Context, req dto.StockKeyRequest) (inventory.Key, bool) {
	actor, ok := h.Actor(c)
	if !ok {
		return inventory.Key{}, false
	}
	key, err := req.ToKey()
	if err != nil {
		h.Error(c, err)
		return inventory.Key{}, false
	}
	if err := h.ledger.AuthorizeManage(c.Request.Context(), actor, key); err != nil {
		h.Error(c, err)
		return inventory.Key{}, false
	}
	return key, true
}

// Adjust handles POST /inventory/stock/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, ok := h.manageKey(c, req.StockKeyRequest)
	if !ok {
		return
	}
	actor, _ := h.Actor(c)

	unit, err := h.ledger.Adjust(c.Request.Context(), key, req.Delta, inventory.Reference{
		ID:     actor.ID.String(),
		Type:   inventory.RefManual,
		Reason: req.Reason,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, unit)
}

// Restock handles POST /inventory/stock/restock
func (h *InventoryHandler) Restock(c *gin.Context) {
	var req dto.RestockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, ok := h.manageKey(c, req.StockKeyRequest)
	if !ok {
		return
	}
	actor, _ := h.Actor(c)

	restock, err := h.ledger.Restock(c.Request.Context(), key, req.ToDomain(actor.ID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, restock)
}

// SetReorderLevel handles PUT /inventory/stock/reorder-level
func (h *InventoryHandler) SetReorderLevel(c *gin.Context) {
	var req dto.ReorderLevelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, ok := h.manageKey(c, req.StockKeyRequest)
	if !ok {
		return
	}
	unit, err := h.ledger.SetReorderLevel(c.Request.Context(), key, req.ReorderLevel)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, unit)
}

// Movements handles GET /inventory/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	var req dto.MovementsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	key, filter, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.ledger.AuthorizeManage(ctx, actor, key); err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.ledger.ListMovements(ctx, key, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, movements)
}

// LowStock handles GET /inventory/low-stock
// Vendors get their own units; admins must name the vendor.
func (h *InventoryHandler) LowStock(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}

	vendorID := actor.ID
	switch {
	case actor.IsAdmin():
		raw := c.Query("vendorId")
		if raw == "" {
			h.Error(c, apperror.NewValidation("vendorId is required"))
			return
		}
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid vendorId format"))
			return
		}
		vendorID = parsed
	case !actor.IsVendor():
		h.Error(c, apperror.NewForbidden("only vendors and admins see low stock"))
		return
	}

	units, err := h.ledger.LowStockForVendor(c.Request.Context(), vendorID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, units)
}
