package domain

import (
	"context"
	"errors"
	"time"

	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type ListCustomerRequest struct {
	pagination.Pagination
	Name            string
	Email           string
	GroupName       string
	IncludeArchived bool
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

type ListCustomerFilter struct {
	Name            string
	Email           string
	GroupName       string
	IncludeArchived bool
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name           string
	Email          string
	Role           string
	PoolSubaccount string
	GroupName      string
}

type UpdateCustomerRequest struct {
	ID             string
	Name           *string
	PoolSubaccount *string
	GroupName      *string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(ctx context.Context, id string) (Customer, error)
	Update(context.Context, UpdateCustomerRequest) (Customer, error)
	Archive(ctx context.Context, id string) error
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidID    = errors.New("invalid_id")
	ErrEmailTaken   = errors.New("email_taken")
	ErrNotFound     = errors.New("not_found")
	ErrArchived     = errors.New("customer_archived")
)
