package store

import (
	"math"
	"strings"
)

// MaxQuantity is the largest stock level a product can hold. It matches the
// postgres INTEGER column.
const MaxQuantity = math.MaxInt32

// ProductKey addresses one product. Owner "" is the global scope.
type ProductKey struct {
	Owner string
	Name  string
}

// UserQuery selects a user by exactly one of its unique fields.
type UserQuery struct {
	ID       string
	Username string
	Email    string
}

func (q UserQuery) empty() bool {
	return strings.TrimSpace(q.ID) == "" && strings.TrimSpace(q.Username) == "" && strings.TrimSpace(q.Email) == ""
}
