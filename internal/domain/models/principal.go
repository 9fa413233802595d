package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Principal is the authenticated caller of a drive operation.
// It is resolved by the auth layer and passed explicitly to every operation.
type Principal struct {
	UserID primitive.ObjectID
	Tier   string
}
