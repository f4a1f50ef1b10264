package models

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&User{},
		&ConfirmEmailToken{},
		&PasswordResetToken{},
		&Shop{},
		&Category{},
		&ShopCategory{},
		&Product{},
		&ProductInfo{},
		&Parameter{},
		&ProductParameter{},
		&Contact{},
		&Order{},
		&OrderItem{},
		&Task{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
