package resource

import "time"

// Resource は予約対象のリソース（会議室・デスク等）を表す
// リソースのCRUDは外部の管理系が担うため、本システムは参照のみを行う
type Resource struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewResource は新しいリソースを作成する
func NewResource(name, location string, capacity int) *Resource {
	now := time.Now()
	return &Resource{
		Name:      name,
		Location:  location,
		Capacity:  capacity,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate はリソースの検証を行う
func (r *Resource) Validate() error {
	if r.Name == "" {
		return ErrResourceNameRequired
	}
	if r.Capacity < 1 {
		return ErrInvalidCapacity
	}
	return nil
}
