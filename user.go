package regrader

// User is a contestant. Contest membership is granted per category.
type User struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Institution string `json:"institution"`
	CategoryID  int    `db:"category_id" json:"category_id"`
}
