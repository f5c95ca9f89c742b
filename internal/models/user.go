package models

// UserFields is the field set shared by the user output shapes.
type UserFields struct {
	Username string `json:"username" bson:"username"`
	Email    string `json:"email"    bson:"email"`
}

// UserCreate is the JSON body for POST /users/.
type UserCreate struct {
	Username *string `json:"username" validate:"required"`
	Email    string  `json:"email"    validate:"required,email"`
}

// User is a row in the users table plus the tasks it owns.
type User struct {
	ID         int64 `json:"id" bson:"id"`
	UserFields `bson:",inline"`
	Tasks      []Task `json:"tasks" bson:"tasks"`
}
