package request

// CreateCategory adds a routing category.
type CreateCategory struct {
	Name string `json:"name" validate:"required,slug"`
}

type SetPreferredModel struct {
	ModelID *string `json:"model_id"`
}

// CreateModel registers a model in the catalog. Loaded state is driven by
// container lifecycle, not by this request.
type CreateModel struct {
	Name       string  `json:"name" validate:"required,slug"`
	CategoryID *string `json:"category_id,omitempty"`
}

type SetModelCategory struct {
	CategoryID *string `json:"category_id"`
}

// ContainerStart reports a backend container that has come up for a model.
type ContainerStart struct {
	Port  int `json:"port" validate:"required,min=1,max=65535"`
	Slots int `json:"slots" validate:"required,min=1"`
}
