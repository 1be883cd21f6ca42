package category

import (
	"errors"
	"time"

	categoryDatamodel "github.com/frahmantamala/expense-approvals/internal/core/datamodel/category"
)

var ErrCategoryNotFound = errors.New("category not found")

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Defaults are the categories every installation starts with, in display order.
var Defaults = []Category{
	{Name: "Food", Description: "Meals and client entertainment"},
	{Name: "Travel", Description: "Flights, trains, cabs and mileage"},
	{Name: "Hotel", Description: "Lodging during business travel"},
	{Name: "Fuel", Description: "Fuel for company or personal vehicles"},
	{Name: "Supplies", Description: "Office supplies and equipment"},
	{Name: "Software", Description: "Subscriptions and licences"},
	{Name: "Other", Description: "Anything that does not fit elsewhere"},
}

func (c *Category) ToResponse() CategoryResponse {
	return CategoryResponse{
		Name:        c.Name,
		Description: c.Description,
	}
}

func ToDataModel(c *Category) *categoryDatamodel.ExpenseCategory {
	return &categoryDatamodel.ExpenseCategory{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		SortOrder:   c.SortOrder,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func FromDataModel(c *categoryDatamodel.ExpenseCategory) *Category {
	return &Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		SortOrder:   c.SortOrder,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
