package store

import "fmt"

// OrderService handles order business logic.
type OrderService struct {
	repo Repository
}

// NewOrderService creates a new OrderService.
func NewOrderService(repo Repository) *OrderService {
	return &OrderService{repo: repo}
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(id int) (*Order, error) {
	order, err := s.repo.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// CreateOrder creates a new order.
func (s *OrderService) CreateOrder(customer string, amount int) (*Order, error) {
	order := newOrder(customer, amount)
	if err := s.repo.Save(order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}
