package order

// Command is a request to change an order. The set of commands is closed.
type Command interface {
	// AggregateID returns the id of the order the command targets.
	AggregateID() string
	// Name returns a stable name used in logs and traces.
	Name() string

	isCommand()
}

type CreateOrder struct {
	OrderID string
}

type AddProduct struct {
	OrderID   string
	ProductID string
}

type IncrementProductCount struct {
	OrderID   string
	ProductID string
}

type DecrementProductCount struct {
	OrderID   string
	ProductID string
}

type ConfirmOrder struct {
	OrderID string
}

type ShipOrder struct {
	OrderID string
}

func (c CreateOrder) AggregateID() string           { return c.OrderID }
func (c AddProduct) AggregateID() string            { return c.OrderID }
func (c IncrementProductCount) AggregateID() string { return c.OrderID }
func (c DecrementProductCount) AggregateID() string { return c.OrderID }
func (c ConfirmOrder) AggregateID() string          { return c.OrderID }
func (c ShipOrder) AggregateID() string             { return c.OrderID }

func (CreateOrder) Name() string           { return "CreateOrder" }
func (AddProduct) Name() string            { return "AddProduct" }
func (IncrementProductCount) Name() string { return "IncrementProductCount" }
func (DecrementProductCount) Name() string { return "DecrementProductCount" }
func (ConfirmOrder) Name() string          { return "ConfirmOrder" }
func (ShipOrder) Name() string             { return "ShipOrder" }

func (CreateOrder) isCommand()           {}
func (AddProduct) isCommand()            {}
func (IncrementProductCount) isCommand() {}
func (DecrementProductCount) isCommand() {}
func (ConfirmOrder) isCommand()          {}
func (ShipOrder) isCommand()             {}

// ValidateCommand checks the fields every command must carry.
func ValidateCommand(cmd Command) error {
	if cmd == nil {
		return &ValidationError{Code: CodeInvalidCommand, Err: ErrInvalidCommand}
	}
	if cmd.AggregateID() == "" {
		return &ValidationError{Code: CodeInvalidCommand, Err: ErrInvalidCommand}
	}

	var productID string
	switch c := cmd.(type) {
	case AddProduct:
		productID = c.ProductID
	case IncrementProductCount:
		productID = c.ProductID
	case DecrementProductCount:
		productID = c.ProductID
	default:
		return nil
	}
	if productID == "" {
		return &ValidationError{Code: CodeInvalidCommand, OrderID: cmd.AggregateID(), Err: ErrInvalidCommand}
	}

	return nil
}
