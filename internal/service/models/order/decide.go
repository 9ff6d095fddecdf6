package order

// Decide validates cmd against the current state and returns the events that
// record its effect. State is never modified; apply the returned events to
// move the order forward. A nil slice with a nil error means the command had
// nothing to change.
//
// Returned events carry OrderID, Type, ProductID and the next Seq values.
// ID and OccurredAt are left for the caller to stamp.
func (o *Order) Decide(cmd Command) ([]Event, error) {
	if err := ValidateCommand(cmd); err != nil {
		return nil, err
	}

	if c, ok := cmd.(CreateOrder); ok {
		if o.Initialized() {
			return nil, reject(CodeAlreadyCreated, ErrAlreadyCreated, o.id, "")
		}

		return o.emit(c.OrderID, EventTypeOrderCreated, ""), nil
	}

	if !o.Initialized() {
		return nil, reject(CodeNotCreated, ErrNotCreated, cmd.AggregateID(), "")
	}
	if cmd.AggregateID() != o.id {
		return nil, reject(CodeInvalidCommand, ErrInvalidCommand, cmd.AggregateID(), "")
	}

	switch c := cmd.(type) {
	case AddProduct:
		if o.Confirmed() {
			return nil, reject(CodeAlreadyConfirmed, ErrAlreadyConfirmed, o.id, c.ProductID)
		}
		if _, ok := o.lines[c.ProductID]; ok {
			return nil, reject(CodeDuplicateLine, ErrDuplicateLine, o.id, c.ProductID)
		}

		return o.emit(o.id, EventTypeProductAdded, c.ProductID), nil

	case IncrementProductCount:
		if o.Confirmed() {
			return nil, reject(CodeAlreadyConfirmed, ErrAlreadyConfirmed, o.id, c.ProductID)
		}
		if _, ok := o.lines[c.ProductID]; !ok {
			return nil, reject(CodeLineNotFound, ErrLineNotFound, o.id, c.ProductID)
		}

		return o.emit(o.id, EventTypeProductCountIncremented, c.ProductID), nil

	case DecrementProductCount:
		if o.Confirmed() {
			return nil, reject(CodeAlreadyConfirmed, ErrAlreadyConfirmed, o.id, c.ProductID)
		}
		l, ok := o.lines[c.ProductID]
		if !ok {
			return nil, reject(CodeLineNotFound, ErrLineNotFound, o.id, c.ProductID)
		}
		if l.count <= 1 {
			return o.emit(o.id, EventTypeProductRemoved, c.ProductID), nil
		}

		return o.emit(o.id, EventTypeProductCountDecremented, c.ProductID), nil

	case ConfirmOrder:
		if o.Confirmed() {
			return nil, nil
		}

		return o.emit(o.id, EventTypeOrderConfirmed, ""), nil

	case ShipOrder:
		if o.Shipped() {
			return nil, reject(CodeAlreadyShipped, ErrAlreadyShipped, o.id, "")
		}
		if !o.Confirmed() {
			return nil, reject(CodeNotConfirmed, ErrNotConfirmed, o.id, "")
		}

		return o.emit(o.id, EventTypeOrderShipped, ""), nil

	default:
		return nil, reject(CodeInvalidCommand, ErrInvalidCommand, cmd.AggregateID(), "")
	}
}

func (o *Order) emit(orderID string, t EventType, productID string) []Event {
	return []Event{{
		OrderID:   orderID,
		Seq:       o.seq + 1,
		Type:      t,
		ProductID: productID,
	}}
}
