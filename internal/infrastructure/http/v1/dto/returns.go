package dto

import (
	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/returns"
)

// ReturnItemRequest is one line of a return request.
type ReturnItemRequest struct {
	OrderItemID string `json:"orderItemId" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	Reason      string `json:"reason"`
}

// CreateReturnRequest opens a return against a delivered order.
type CreateReturnRequest struct {
	OrderID string              `json:"orderId" binding:"required"`
	Reason  string              `json:"reason" binding:"required"`
	Items   []ReturnItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ToDomain parses the ids of the request.
func (r CreateReturnRequest) ToDomain() (returns.CreateInput, error) {
	orderID, err := id.Parse(r.OrderID)
	if err != nil {
		return returns.CreateInput{}, apperror.NewValidation("invalid orderId format")
	}
	in := returns.CreateInput{
		OrderID: orderID,
		Reason:  r.Reason,
		Items:   make([]returns.ItemRequest, len(r.Items)),
	}
	for i, it := range r.Items {
		itemID, err := id.Parse(it.OrderItemID)
		if err != nil {
			return returns.CreateInput{}, apperror.NewValidation("invalid orderItemId format").
				WithDetail("index", i)
		}
		in.Items[i] = returns.ItemRequest{
			OrderItemID: itemID,
			Quantity:    it.Quantity,
			Reason:      it.Reason,
		}
	}
	return in, nil
}

// ReturnStatusRequest moves a return or one of its lines.
type ReturnStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (r ReturnStatusRequest) ToDomain() returns.StatusUpdate {
	return returns.StatusUpdate{Status: returns.Status(r.Status), Reason: r.Reason}
}
