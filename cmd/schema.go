package main

import "firestore-access/internal/access/domain/model"

// appSchema declares the document keys the service accepts.
func appSchema() *model.Schema {
	return model.MustNewSchema(map[string]model.DocShape{
		"users/{uid}": {
			Description: "application users",
			Rule:        `op != "create" || (has(data.name) && size(data.name) > 0)`,
		},
		"users/{uid}/orders/{orderId}": {
			Description: "orders placed by a user",
			Rule:        `!has(data.total) || data.total >= 0.0`,
		},
		"users/{uid}/orders/{orderId}/items/{itemId}": {
			Description: "line items of an order",
		},
	}, map[string]string{
		"orders": "users/{uid}/orders/{orderId}",
		"items":  "users/{uid}/orders/{orderId}/items/{itemId}",
	})
}
