package store

// Order is one customer order.
type Order struct {
	ID       int
	Customer string
	Amount   int
}

// Repository is the interface for order storage.
type Repository interface {
	FindByID(id int) (*Order, error)
	Save(order *Order) error
}

func newOrder(customer string, amount int) *Order {
	return &Order{Customer: customer, Amount: amount}
}
