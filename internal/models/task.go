package models

// TaskFields is the field set shared by the task output shapes.
type TaskFields struct {
	Title       string `json:"title"       bson:"title"`
	Description string `json:"description" bson:"description"`
	DueDate     Date   `json:"due_date"    bson:"due_date"`
}

// TaskCreate is the JSON body for POST /tasks/. Text fields are pointers so
// an absent field fails "required" while an empty string is accepted.
type TaskCreate struct {
	Title       *string `json:"title"       validate:"required"`
	Description *string `json:"description" validate:"required"`
	DueDate     Date    `json:"due_date"    validate:"required"`
	UserID      int64   `json:"user_id"     validate:"required,gt=0"`
}

// TaskUpdate is the JSON body for PUT /tasks/{id}. Nil fields keep their
// stored value.
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *Date   `json:"due_date"`
}

// Task is a row in the tasks table.
type Task struct {
	ID         int64 `json:"id" bson:"id"`
	TaskFields `bson:",inline"`
	UserID     int64 `json:"user_id" bson:"user_id"`
}
